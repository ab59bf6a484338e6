// Package memstore is an in-memory movie store with the same contract and
// sentinel errors as repository.MovieRepo.  Every method holds a single
// mutex, so each call is atomic the way a single SQL statement is; callers
// still have to serialize read-modify-write sequences themselves.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/repository"
)

type row struct {
	movie     model.Movie
	reactions map[uint64]model.ReactionKind
}

// Store keeps movies keyed by ID.
type Store struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*row
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{rows: make(map[uint64]*row), now: time.Now}
}

func (s *Store) Create(ctx context.Context, m *model.Movie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if strings.EqualFold(r.movie.Title, m.Title) {
			return repository.ErrMovieExists
		}
	}
	s.nextID++
	m.ID = s.nextID
	m.LikeCount, m.HateCount, m.Version = 0, 0, 0
	m.Reactions = nil
	m.CreatedAt = s.now().UTC()
	s.rows[m.ID] = &row{movie: *m, reactions: make(map[uint64]model.ReactionKind)}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrMovieNotFound
	}
	m := r.movie
	return &m, nil
}

// Load returns a deep copy of the movie including its reaction set.
func (s *Store) Load(ctx context.Context, id uint64) (*model.Movie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrMovieNotFound
	}
	m := r.movie
	m.Reactions = r.snapshot()
	return &m, nil
}

func (r *row) snapshot() []model.Reaction {
	out := make([]model.Reaction, 0, len(r.reactions))
	for uid, k := range r.reactions {
		out = append(out, model.Reaction{UserID: uid, Kind: k})
	}
	model.SortReactions(out)
	return out
}

func (s *Store) GetReaction(ctx context.Context, movieID, userID uint64) (model.ReactionKind, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[movieID]
	if !ok {
		return "", false, repository.ErrMovieNotFound
	}
	k, ok := r.reactions[userID]
	return k, ok, nil
}

// SaveReactions replaces the reaction set if the movie is still at
// expectedVersion, otherwise it returns repository.ErrConflict.
func (s *Store) SaveReactions(ctx context.Context, movieID, expectedVersion uint64, reactions []model.Reaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := make(map[uint64]model.ReactionKind, len(reactions))
	for _, rc := range reactions {
		if !rc.Kind.Valid() {
			return fmt.Errorf("%w: %q", repository.ErrInvalidCounter, rc.Kind)
		}
		if _, dup := next[rc.UserID]; dup {
			return fmt.Errorf("duplicate reaction for user %d", rc.UserID)
		}
		next[rc.UserID] = rc.Kind
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[movieID]
	if !ok {
		return repository.ErrMovieNotFound
	}
	if r.movie.Version != expectedVersion {
		return repository.ErrConflict
	}
	r.reactions = next
	r.movie.Version++
	return nil
}

func (s *Store) IncrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error {
	return s.AdjustCounters(ctx, movieID, model.CounterDelta{Kind: kind, Delta: 1})
}

func (s *Store) DecrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error {
	return s.AdjustCounters(ctx, movieID, model.CounterDelta{Kind: kind, Delta: -1})
}

// AdjustCounters applies all deltas under one lock acquisition.  Counters
// stop at zero like the SQL implementation.
func (s *Store) AdjustCounters(ctx context.Context, movieID uint64, deltas ...model.CounterDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range deltas {
		if !d.Kind.Valid() {
			return repository.ErrInvalidCounter
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[movieID]
	if !ok {
		return repository.ErrMovieNotFound
	}
	for _, d := range deltas {
		c := &r.movie.LikeCount
		if d.Kind == model.ReactionHate {
			c = &r.movie.HateCount
		}
		*c += int64(d.Delta)
		if *c < 0 {
			*c = 0
		}
	}
	return nil
}

// RecountCounters sets both counters from the reaction set.
func (s *Store) RecountCounters(ctx context.Context, movieID uint64) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[movieID]
	if !ok {
		return 0, 0, repository.ErrMovieNotFound
	}
	m := model.Movie{Reactions: r.snapshot()}
	r.movie.LikeCount, r.movie.HateCount = m.CountKinds()
	return r.movie.LikeCount, r.movie.HateCount, nil
}

// ForceCounters overwrites the counters without touching reactions.  Tests
// use it to simulate counter drift.
func (s *Store) ForceCounters(movieID uint64, likes, hates int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[movieID]; ok {
		r.movie.LikeCount, r.movie.HateCount = likes, hates
	}
}

func (s *Store) ListIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.rows))
	for id := range s.rows {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) List(ctx context.Context, p repository.ListParams) (repository.MoviePage, error) {
	return s.list(ctx, p, func(model.Movie) bool { return true })
}

func (s *Store) ListByPublisher(ctx context.Context, publisherID uint64, p repository.ListParams) (repository.MoviePage, error) {
	return s.list(ctx, p, func(m model.Movie) bool { return m.PublishedBy == publisherID })
}

func (s *Store) list(ctx context.Context, p repository.ListParams, keep func(model.Movie) bool) (repository.MoviePage, error) {
	p = p.Normalize()
	page := repository.MoviePage{Page: p.Page, Size: p.Size, Items: []model.Movie{}}
	if err := ctx.Err(); err != nil {
		return page, err
	}
	s.mu.Lock()
	all := make([]model.Movie, 0, len(s.rows))
	for _, r := range s.rows {
		if keep(r.movie) {
			all = append(all, r.movie)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch p.Sort {
		case repository.SortLikes:
			if a.LikeCount != b.LikeCount {
				return a.LikeCount > b.LikeCount
			}
		case repository.SortHates:
			if a.HateCount != b.HateCount {
				return a.HateCount > b.HateCount
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID > b.ID
	})
	page.Total = int64(len(all))
	start := p.Offset()
	if start < len(all) {
		end := start + p.Size
		if end > len(all) {
			end = len(all)
		}
		page.Items = append(page.Items, all[start:end]...)
	}
	return page, nil
}
