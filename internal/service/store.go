package service

import (
	"context"

	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/queue"
)

// MovieStore is what the reaction manager needs from persistence.
// repository.MovieRepo and memstore.Store implement it.
//
// Load returns repository.ErrMovieNotFound for a missing movie.
// SaveReactions returns repository.ErrConflict when the movie is no longer
// at expectedVersion.  The counter methods must be atomic in the store
// (no read-increment-write) and are not idempotent: a call that fails
// ambiguously must not be repeated without reconciliation.
type MovieStore interface {
	Load(ctx context.Context, movieID uint64) (*model.Movie, error)
	SaveReactions(ctx context.Context, movieID, expectedVersion uint64, reactions []model.Reaction) error
	IncrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error
	DecrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error
}

// CounterAdjuster is implemented by stores that can apply several counter
// deltas in one atomic step.  Switch uses it when available.
type CounterAdjuster interface {
	AdjustCounters(ctx context.Context, movieID uint64, deltas ...model.CounterDelta) error
}

// ReactionReader answers "what did this user do" without loading the whole
// reaction set.
type ReactionReader interface {
	GetReaction(ctx context.Context, movieID, userID uint64) (model.ReactionKind, bool, error)
}

// Locker serializes work on a key.  Lock blocks until the key is free or
// ctx is done; the returned func releases the key and may be called more
// than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Events receives notifications about reaction changes.  Implementations
// must not block for long and must not fail the caller; errors are theirs
// to log.
type Events interface {
	ReactionChanged(ctx context.Context, ev queue.ReactionChangedEvent)
	CounterDrift(ctx context.Context, ev queue.CounterDriftEvent)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) ReactionChanged(context.Context, queue.ReactionChangedEvent) {}
func (NopEvents) CounterDrift(context.Context, queue.CounterDriftEvent)       {}
