package repository

import (
	"strings"

	"github.com/iliyamo/movierama/internal/model"
)

// Sort orders accepted by movie listings.
const (
	SortDate  = "date"
	SortLikes = "likes"
	SortHates = "hates"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 50
)

// ListParams selects one page of movies.  Page is zero-based.
type ListParams struct {
	Page int
	Size int
	Sort string
}

// Normalize clamps paging values and falls back to date ordering.
func (p ListParams) Normalize() ListParams {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	switch strings.ToLower(p.Sort) {
	case SortLikes:
		p.Sort = SortLikes
	case SortHates:
		p.Sort = SortHates
	default:
		p.Sort = SortDate
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p ListParams) Offset() int { return p.Page * p.Size }

// MoviePage is one page of a listing.  Items carry counters but no reaction
// sets.
type MoviePage struct {
	Items []model.Movie
	Page  int
	Size  int
	Total int64
}

// orderClause maps a normalized sort to SQL.  Ties break on id so pages are
// stable.
func orderClause(sort string) string {
	switch sort {
	case SortLikes:
		return "ORDER BY m.like_count DESC, m.id DESC"
	case SortHates:
		return "ORDER BY m.hate_count DESC, m.id DESC"
	default:
		return "ORDER BY m.created_at DESC, m.id DESC"
	}
}

// counterColumn returns the movies column backing a reaction kind.
func counterColumn(kind model.ReactionKind) (string, error) {
	switch kind {
	case model.ReactionLike:
		return "like_count", nil
	case model.ReactionHate:
		return "hate_count", nil
	}
	return "", ErrInvalidCounter
}
