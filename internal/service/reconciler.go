package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/metrics"
	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/queue"
	"github.com/iliyamo/movierama/internal/repository"
)

// RecountStore is what the reconciler needs from persistence.
type RecountStore interface {
	Load(ctx context.Context, movieID uint64) (*model.Movie, error)
	RecountCounters(ctx context.Context, movieID uint64) (likes, hates int64, err error)
	ListIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)
}

// Reconciler recomputes movie counters from reaction sets.  It is the only
// code that writes counters outside a reaction operation, and it takes the
// same per-movie lock as the reaction manager so a recount never interleaves
// with a transition.
type Reconciler struct {
	store    RecountStore
	locker   Locker
	batch    int
	interval time.Duration
}

// NewReconciler builds a reconciler.  locker must be the one the reaction
// manager uses.
func NewReconciler(store RecountStore, locker Locker, batch int, interval time.Duration) *Reconciler {
	if batch <= 0 {
		batch = 100
	}
	return &Reconciler{store: store, locker: locker, batch: batch, interval: interval}
}

// RecountMovie sets the counters of one movie from its reactions and
// reports whether they had drifted.
func (r *Reconciler) RecountMovie(ctx context.Context, movieID uint64) (repaired bool, err error) {
	unlock, err := r.locker.Lock(ctx, movieLockKey(movieID))
	if err != nil {
		return false, fmt.Errorf("lock movie %d: %w", movieID, err)
	}
	defer unlock()

	before, err := r.store.Load(ctx, movieID)
	if err != nil {
		if errors.Is(err, repository.ErrMovieNotFound) {
			return false, fmt.Errorf("%w: movie not found", ErrNotFound)
		}
		return false, fmt.Errorf("load movie %d: %w", movieID, err)
	}
	likes, hates, err := r.store.RecountCounters(ctx, movieID)
	if err != nil {
		return false, fmt.Errorf("recount movie %d: %w", movieID, err)
	}

	repaired = likes != before.LikeCount || hates != before.HateCount
	if repaired {
		metrics.ReconciledMovies.WithLabelValues("repaired").Inc()
		logging.Warn().Uint64("movie_id", movieID).
			Int64("likes_before", before.LikeCount).Int64("likes", likes).
			Int64("hates_before", before.HateCount).Int64("hates", hates).
			Msg("movie counters repaired")
	} else {
		metrics.ReconciledMovies.WithLabelValues("clean").Inc()
	}
	return repaired, nil
}

// Sweep recounts every movie once, batch by batch, and returns how many
// were repaired.  A failing movie is logged and skipped.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	var after uint64
	repaired := 0
	for {
		ids, err := r.store.ListIDs(ctx, after, r.batch)
		if err != nil {
			return repaired, fmt.Errorf("list movie ids: %w", err)
		}
		for _, id := range ids {
			fixed, err := r.RecountMovie(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return repaired, ctx.Err()
				}
				logging.Error().Err(err).Uint64("movie_id", id).Msg("recount failed")
				continue
			}
			if fixed {
				repaired++
			}
		}
		if len(ids) < r.batch {
			return repaired, nil
		}
		after = ids[len(ids)-1]
	}
}

// Run sweeps every interval until ctx is cancelled.  A zero interval
// disables the periodic sweep and Run returns immediately.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("reconcile sweep failed")
				continue
			}
			logging.Debug().Int("repaired", n).Msg("reconcile sweep done")
		}
	}
}

// HandleDrift is a queue.Handler for counter.drift messages.  A drift
// event for a movie that no longer exists is acknowledged.
func (r *Reconciler) HandleDrift(ctx context.Context, body []byte) error {
	var ev queue.CounterDriftEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal drift event: %w", err)
	}
	_, err := r.RecountMovie(ctx, ev.MovieID)
	if errors.Is(err, ErrNotFound) {
		logging.Info().Uint64("movie_id", ev.MovieID).Str("event_id", ev.EventID).Msg("drift event for unknown movie")
		return nil
	}
	return err
}
