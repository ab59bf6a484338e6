package service

import (
	"context"
	"errors"
)

// Error kinds returned by the reaction manager.  Every error it returns
// wraps exactly one of these (test with errors.Is) plus a message that says
// which precondition failed.
var (
	// ErrNotFound: the movie does not exist, or the user has no reaction to
	// remove or change.
	ErrNotFound = errors.New("not found")
	// ErrSelfReactionForbidden: the user published the movie.
	ErrSelfReactionForbidden = errors.New("self reaction forbidden")
	// ErrDuplicateReaction: the user already reacted to the movie.
	ErrDuplicateReaction = errors.New("duplicate reaction")
	// ErrInvalidReaction: the requested kind is neither LIKE nor HATE.
	ErrInvalidReaction = errors.New("invalid reaction")
	// ErrConcurrencyConflict: a concurrent write changed the movie, or the
	// movie stayed locked for longer than the lock wait.  Nothing was
	// written; the caller may retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrCounterAdjustmentFailed: the reaction set was written but the
	// counters were not adjusted.  The counters drift until reconciliation.
	ErrCounterAdjustmentFailed = errors.New("counter adjustment failed")
)

// ErrorKind returns a stable short name for err, used as a metric label and
// as the "code" field of HTTP error bodies.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSelfReactionForbidden):
		return "self_reaction_forbidden"
	case errors.Is(err, ErrDuplicateReaction):
		return "duplicate_reaction"
	case errors.Is(err, ErrInvalidReaction):
		return "invalid_reaction"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrCounterAdjustmentFailed):
		return "counter_adjustment_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
