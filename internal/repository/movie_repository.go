// Package repository contains data access logic for movies and their
// reactions.  The reaction set lives in movie_reactions (one row per user
// per movie); the like/hate counters on movies are denormalized copies
// that are only changed through the atomic counter methods below or by
// RecountCounters.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/movierama/internal/database"
	"github.com/iliyamo/movierama/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MovieRepo manages persistence for movies and reactions.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo constructs a MovieRepo with the given DB handle.
func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// DB exposes the underlying sql.DB for callers that need their own
// transactions.
func (r *MovieRepo) DB() *sql.DB {
	return r.db
}

const movieColumns = `m.id, m.title, m.description, m.published_by, m.like_count, m.hate_count, m.version, m.created_at`

func scanMovie(row interface{ Scan(...any) error }, m *model.Movie) error {
	return row.Scan(&m.ID, &m.Title, &m.Description, &m.PublishedBy, &m.LikeCount, &m.HateCount, &m.Version, &m.CreatedAt)
}

// Create inserts a new movie and populates the generated ID and DB-default
// fields.  Counters always start at zero regardless of the input.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	const q = `INSERT INTO movies (title, description, published_by) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, m.Title, m.Description, m.PublishedBy)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrMovieExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	const sel = `SELECT ` + movieColumns + ` FROM movies m WHERE m.id = ?`
	m.Reactions = nil
	return scanMovie(r.db.QueryRowContext(ctx, sel, uint64(id)), m)
}

// GetByID returns a movie without its reaction set.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	const q = `SELECT ` + movieColumns + ` FROM movies m WHERE m.id = ?`
	var m model.Movie
	if err := scanMovie(r.db.QueryRowContext(ctx, q, id), &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Load returns a movie together with its full reaction set ordered by user
// ID.  Version identifies the snapshot for SaveReactions.
func (r *MovieRepo) Load(ctx context.Context, id uint64) (*model.Movie, error) {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Reactions, err = loadReactions(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetReaction returns the reaction userID holds on movieID.  ok is false
// when there is none.  A missing movie yields ErrMovieNotFound.
func (r *MovieRepo) GetReaction(ctx context.Context, movieID, userID uint64) (model.ReactionKind, bool, error) {
	const q = `SELECT r.reaction FROM movies m
               LEFT JOIN movie_reactions r ON r.movie_id = m.id AND r.user_id = ?
               WHERE m.id = ?`
	var kind sql.NullString
	if err := r.db.QueryRowContext(ctx, q, userID, movieID).Scan(&kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, ErrMovieNotFound
		}
		return "", false, err
	}
	if !kind.Valid {
		return "", false, nil
	}
	return model.ReactionKind(kind.String), true, nil
}

func loadReactions(ctx context.Context, q database.Querier, movieID uint64, forUpdate bool) ([]model.Reaction, error) {
	query := `SELECT user_id, reaction FROM movie_reactions WHERE movie_id = ? ORDER BY user_id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reaction
	for rows.Next() {
		var rc model.Reaction
		if err := rows.Scan(&rc.UserID, &rc.Kind); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// SaveReactions replaces the reaction set of a movie with reactions.  The
// write only succeeds if the movie is still at expectedVersion; otherwise
// ErrConflict is returned and nothing is written.  Only the difference
// against the stored set is applied, inside one transaction, and the
// movie version is bumped.  Counters are not touched.
func (r *MovieRepo) SaveReactions(ctx context.Context, movieID, expectedVersion uint64, reactions []model.Reaction) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE movies SET version = version + 1 WHERE id = ? AND version = ?`,
			movieID, expectedVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM movies WHERE id = ?`, movieID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrMovieNotFound
			}
			if err != nil {
				return err
			}
			return ErrConflict
		}

		current, err := loadReactions(ctx, tx, movieID, true)
		if err != nil {
			return err
		}
		stored := make(map[uint64]model.ReactionKind, len(current))
		for _, rc := range current {
			stored[rc.UserID] = rc.Kind
		}
		wanted := make(map[uint64]struct{}, len(reactions))
		for _, rc := range reactions {
			if !rc.Kind.Valid() {
				return fmt.Errorf("%w: %q", ErrInvalidCounter, rc.Kind)
			}
			if _, dup := wanted[rc.UserID]; dup {
				return fmt.Errorf("duplicate reaction for user %d", rc.UserID)
			}
			wanted[rc.UserID] = struct{}{}
			prev, ok := stored[rc.UserID]
			switch {
			case !ok:
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO movie_reactions (movie_id, user_id, reaction) VALUES (?, ?, ?)`,
					movieID, rc.UserID, string(rc.Kind)); err != nil {
					return err
				}
			case prev != rc.Kind:
				if _, err := tx.ExecContext(ctx,
					`UPDATE movie_reactions SET reaction = ? WHERE movie_id = ? AND user_id = ?`,
					string(rc.Kind), movieID, rc.UserID); err != nil {
					return err
				}
			}
		}
		for userID := range stored {
			if _, keep := wanted[userID]; keep {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM movie_reactions WHERE movie_id = ? AND user_id = ?`,
				movieID, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncrementCounter atomically adds one to the counter matching kind.
func (r *MovieRepo) IncrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error {
	return r.AdjustCounters(ctx, movieID, model.CounterDelta{Kind: kind, Delta: 1})
}

// DecrementCounter atomically subtracts one from the counter matching kind,
// stopping at zero.
func (r *MovieRepo) DecrementCounter(ctx context.Context, movieID uint64, kind model.ReactionKind) error {
	return r.AdjustCounters(ctx, movieID, model.CounterDelta{Kind: kind, Delta: -1})
}

// AdjustCounters applies all deltas in a single UPDATE statement so that a
// switch never exposes a state where the old counter is decremented but the
// new one not yet incremented.  Counters never go below zero.
func (r *MovieRepo) AdjustCounters(ctx context.Context, movieID uint64, deltas ...model.CounterDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	sets := make([]string, 0, len(deltas))
	args := make([]any, 0, 2*len(deltas)+1)
	for _, d := range deltas {
		col, err := counterColumn(d.Kind)
		if err != nil {
			return err
		}
		switch {
		case d.Delta > 0:
			sets = append(sets, fmt.Sprintf("%s = %s + ?", col, col))
			args = append(args, d.Delta)
		case d.Delta < 0:
			// unsigned columns: subtract only what is there
			sets = append(sets, fmt.Sprintf("%s = IF(%s >= ?, %s - ?, 0)", col, col, col))
			args = append(args, -d.Delta, -d.Delta)
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, movieID)
	res, err := r.db.ExecContext(ctx, `UPDATE movies SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrMovieNotFound
	}
	return nil
}

// RecountCounters recomputes both counters from movie_reactions and returns
// the stored values.  It is the reconciliation path for counter drift.
func (r *MovieRepo) RecountCounters(ctx context.Context, movieID uint64) (likes, hates int64, err error) {
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE movies m SET
                m.like_count = (SELECT COUNT(*) FROM movie_reactions r WHERE r.movie_id = m.id AND r.reaction = 'LIKE'),
                m.hate_count = (SELECT COUNT(*) FROM movie_reactions r WHERE r.movie_id = m.id AND r.reaction = 'HATE')
            WHERE m.id = ?`, movieID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrMovieNotFound
		}
		return tx.QueryRowContext(ctx,
			`SELECT like_count, hate_count FROM movies WHERE id = ?`, movieID).Scan(&likes, &hates)
	})
	return likes, hates, err
}

// ListIDs returns up to limit movie IDs greater than afterID in ascending
// order.  The reconciler pages through all movies with it.
func (r *MovieRepo) ListIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM movies WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns one page of all movies.
func (r *MovieRepo) List(ctx context.Context, p ListParams) (MoviePage, error) {
	return r.list(ctx, p, "", nil)
}

// ListByPublisher returns one page of the movies published by a user.
func (r *MovieRepo) ListByPublisher(ctx context.Context, publisherID uint64, p ListParams) (MoviePage, error) {
	return r.list(ctx, p, "WHERE m.published_by = ?", []any{publisherID})
}

func (r *MovieRepo) list(ctx context.Context, p ListParams, where string, args []any) (MoviePage, error) {
	p = p.Normalize()
	page := MoviePage{Page: p.Page, Size: p.Size, Items: []model.Movie{}}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies m `+where, args...).Scan(&page.Total); err != nil {
		return page, err
	}
	q := `SELECT ` + movieColumns + ` FROM movies m ` + where + ` ` + orderClause(p.Sort) + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.Size, p.Offset())...)
	if err != nil {
		return page, err
	}
	defer rows.Close()
	for rows.Next() {
		var m model.Movie
		if err := scanMovie(rows, &m); err != nil {
			return page, err
		}
		page.Items = append(page.Items, m)
	}
	return page, rows.Err()
}
