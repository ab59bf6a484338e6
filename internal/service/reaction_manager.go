// Package service holds the reaction manager, which owns the rules for
// adding, switching and removing a user's reaction to a movie and keeps the
// movie's like/hate counters in step with its reaction set, plus the
// supporting reconciler and event publisher.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/metrics"
	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/queue"
	"github.com/iliyamo/movierama/internal/repository"
)

const defaultLockWait = 2 * time.Second

// ReactionManager applies reaction state transitions.  Each operation runs
// under a per-movie lock:
//
//	load movie -> validate transition -> save reaction set -> adjust counters
//
// Events are sent once the lock is released.
// Validation failures return before anything is written.  Once the
// reaction set is saved the counters are adjusted exactly once; if that
// fails the error wraps ErrCounterAdjustmentFailed and a drift event is
// emitted for the reconciler.  The manager never retries a write.
type ReactionManager struct {
	store    MovieStore
	locker   Locker
	events   Events
	lockWait time.Duration
	now      func() time.Time
}

// Option configures a ReactionManager.
type Option func(*ReactionManager)

// WithLocker replaces the default in-process LocalLocker.
func WithLocker(l Locker) Option { return func(m *ReactionManager) { m.locker = l } }

// WithEvents sets the event sink (default NopEvents).
func WithEvents(e Events) Option { return func(m *ReactionManager) { m.events = e } }

// WithLockWait bounds how long an operation waits for a busy movie.
func WithLockWait(d time.Duration) Option {
	return func(m *ReactionManager) {
		if d > 0 {
			m.lockWait = d
		}
	}
}

// NewReactionManager builds a manager over store.
func NewReactionManager(store MovieStore, opts ...Option) *ReactionManager {
	if store == nil {
		panic("nil store passed to NewReactionManager")
	}
	m := &ReactionManager{
		store:    store,
		locker:   NewLocalLocker(),
		events:   NopEvents{},
		lockWait: defaultLockWait,
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// AddReaction records kind for userID on movieID and increments the
// matching counter.
func (m *ReactionManager) AddReaction(ctx context.Context, movieID, userID uint64, kind model.ReactionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown reaction %q", ErrInvalidReaction, kind)
	}
	return m.apply(ctx, model.OpAdd, movieID, userID, kind)
}

// RemoveReaction drops userID's reaction on movieID and decrements the
// counter of the kind it had.
func (m *ReactionManager) RemoveReaction(ctx context.Context, movieID, userID uint64) error {
	return m.apply(ctx, model.OpRemove, movieID, userID, "")
}

// SwitchReaction flips userID's reaction on movieID between LIKE and HATE,
// moving one unit from the old counter to the new one.
func (m *ReactionManager) SwitchReaction(ctx context.Context, movieID, userID uint64) error {
	return m.apply(ctx, model.OpSwitch, movieID, userID, "")
}

// GetReaction returns the reaction userID holds on movieID, if any.
func (m *ReactionManager) GetReaction(ctx context.Context, movieID, userID uint64) (model.ReactionKind, bool, error) {
	if rr, ok := m.store.(ReactionReader); ok {
		kind, has, err := rr.GetReaction(ctx, movieID, userID)
		if errors.Is(err, repository.ErrMovieNotFound) {
			return "", false, fmt.Errorf("%w: movie not found", ErrNotFound)
		}
		return kind, has, err
	}
	movie, err := m.load(ctx, movieID)
	if err != nil {
		return "", false, err
	}
	r, has := movie.ReactionOf(userID)
	return r.Kind, has, nil
}

func (m *ReactionManager) apply(ctx context.Context, op model.ReactionOp, movieID, userID uint64, kind model.ReactionKind) (err error) {
	start := m.now()
	defer func() {
		metrics.ObserveReaction(string(op), ErrorKind(err), m.now().Sub(start))
	}()

	notify, err := m.transition(ctx, op, movieID, userID, kind)
	// events leave only after the movie lock is released
	if notify != nil {
		notify()
	}
	return err
}

// transition runs one operation under the movie lock.  The returned notify,
// when non-nil, sends the event describing the outcome and must be called
// after the lock is gone.
func (m *ReactionManager) transition(ctx context.Context, op model.ReactionOp, movieID, userID uint64, kind model.ReactionKind) (notify func(), err error) {
	unlock, err := m.lock(ctx, movieID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	movie, err := m.load(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if op == model.OpAdd && movie.PublishedBy == userID {
		return nil, fmt.Errorf("%w: cannot %s your own movie", ErrSelfReactionForbidden, kind.Verb())
	}

	current, has := movie.ReactionOf(userID)
	from := model.StateOf(current, has)
	to, deltas, err := model.Transition(from, op, kind)
	if err != nil {
		return nil, transitionError(op, kind, err)
	}

	if err := m.store.SaveReactions(ctx, movieID, movie.Version, movie.ReactionsAfter(userID, to)); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: movie %d changed concurrently", ErrConcurrencyConflict, movieID)
		case errors.Is(err, repository.ErrMovieNotFound):
			return nil, fmt.Errorf("%w: movie not found", ErrNotFound)
		}
		return nil, fmt.Errorf("save reactions of movie %d: %w", movieID, err)
	}

	if err := m.adjustCounters(ctx, movieID, deltas); err != nil {
		return m.reportDrift(ctx, movieID, op, err), fmt.Errorf("%w: movie %d: %w", ErrCounterAdjustmentFailed, movieID, err)
	}

	ev := queue.ReactionChangedEvent{
		EventID:    queue.NewEventID(),
		MovieID:    movieID,
		UserID:     userID,
		Op:         string(op),
		From:       stateKind(from),
		To:         stateKind(to),
		OccurredAt: queue.Timestamp(m.now()),
	}
	return func() { m.events.ReactionChanged(ctx, ev) }, nil
}

// lock waits at most lockWait for the movie.  A timeout while the caller's
// own context is still live means the movie is busy, which is reported as
// a conflict.
func (m *ReactionManager) lock(ctx context.Context, movieID uint64) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, m.lockWait)
	defer cancel()
	unlock, err := m.locker.Lock(lctx, movieLockKey(movieID))
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: movie %d is busy", ErrConcurrencyConflict, movieID)
	}
	return nil, fmt.Errorf("lock movie %d: %w", movieID, err)
}

func (m *ReactionManager) load(ctx context.Context, movieID uint64) (*model.Movie, error) {
	movie, err := m.store.Load(ctx, movieID)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return nil, fmt.Errorf("%w: movie not found", ErrNotFound)
		}
		return nil, fmt.Errorf("load movie %d: %w", movieID, err)
	}
	return movie, nil
}

// adjustCounters applies the deltas of one transition.  Two deltas go
// through AdjustCounters when the store has it, so a switch is a single
// atomic statement; otherwise they are applied in order (decrement first).
func (m *ReactionManager) adjustCounters(ctx context.Context, movieID uint64, deltas []model.CounterDelta) error {
	if ca, ok := m.store.(CounterAdjuster); ok && len(deltas) > 1 {
		return ca.AdjustCounters(ctx, movieID, deltas...)
	}
	for _, d := range deltas {
		var err error
		if d.Delta < 0 {
			err = m.store.DecrementCounter(ctx, movieID, d.Kind)
		} else {
			err = m.store.IncrementCounter(ctx, movieID, d.Kind)
		}
		if err != nil {
			return fmt.Errorf("%s counter %+d: %w", d.Kind.Verb(), d.Delta, err)
		}
	}
	return nil
}

// reportDrift records a failed counter adjustment and returns the send of
// the matching drift event.
func (m *ReactionManager) reportDrift(ctx context.Context, movieID uint64, op model.ReactionOp, cause error) func() {
	metrics.CounterDrift.Inc()
	logging.Error().Err(cause).Uint64("movie_id", movieID).Str("op", string(op)).
		Msg("reaction saved but counter adjustment failed, counters need reconciliation")
	ev := queue.CounterDriftEvent{
		EventID:    queue.NewEventID(),
		MovieID:    movieID,
		Op:         string(op),
		Reason:     cause.Error(),
		DetectedAt: queue.Timestamp(m.now()),
	}
	// the request context may be the reason the adjustment failed
	dctx := context.WithoutCancel(ctx)
	return func() { m.events.CounterDrift(dctx, ev) }
}

func transitionError(op model.ReactionOp, kind model.ReactionKind, err error) error {
	switch {
	case errors.Is(err, model.ErrAlreadyReacted):
		return fmt.Errorf("%w: cannot %s a movie more than once", ErrDuplicateReaction, kind.Verb())
	case errors.Is(err, model.ErrNoReaction) && op == model.OpRemove:
		return fmt.Errorf("%w: no reaction to remove", ErrNotFound)
	case errors.Is(err, model.ErrNoReaction):
		return fmt.Errorf("%w: no reaction to change", ErrNotFound)
	}
	return fmt.Errorf("%w: %v", ErrInvalidReaction, err)
}

func stateKind(s model.ReactionState) string {
	k, _ := s.Kind()
	return string(k)
}
