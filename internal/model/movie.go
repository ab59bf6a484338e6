package model

import (
	"sort"
	"time"
)

// Movie represents a recommendation published by a user.  The like and
// hate counters are denormalized copies of the reaction set so listings
// can sort without aggregating.  After every completed reaction operation
// LikeCount equals the number of LIKE reactions and HateCount the number
// of HATE reactions.
//
// Fields:
//
//	ID          – primary key identifier, immutable.
//	Title       – unique movie title (max 100 characters).
//	Description – free text (max 400 characters).
//	PublishedBy – user ID of the publisher, immutable.
//	LikeCount   – number of LIKE reactions.
//	HateCount   – number of HATE reactions.
//	Reactions   – at most one reaction per user, never by PublishedBy.
//	Version     – bumped on every reaction set write; used for optimistic concurrency.
//	CreatedAt   – creation timestamp.
type Movie struct {
	ID          uint64     // movies.id
	Title       string     // movies.title
	Description string     // movies.description
	PublishedBy uint64     // movies.published_by
	LikeCount   int64      // movies.like_count
	HateCount   int64      // movies.hate_count
	Reactions   []Reaction // movie_reactions rows for this movie
	Version     uint64     // movies.version
	CreatedAt   time.Time  // movies.created_at
}

// ReactionOf returns the reaction held by userID, if any.
func (m *Movie) ReactionOf(userID uint64) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.UserID == userID {
			return r, true
		}
	}
	return Reaction{}, false
}

// ReactionsAfter returns a copy of the reaction set in which userID holds
// the reaction described by next.  StateNone drops the user's entry.  The
// result is ordered by user ID.
func (m *Movie) ReactionsAfter(userID uint64, next ReactionState) []Reaction {
	out := make([]Reaction, 0, len(m.Reactions)+1)
	for _, r := range m.Reactions {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	if kind, ok := next.Kind(); ok {
		out = append(out, Reaction{UserID: userID, Kind: kind})
	}
	SortReactions(out)
	return out
}

// CountKinds counts the reaction set by kind.  It is the source of truth the
// counters must agree with.
func (m *Movie) CountKinds() (likes, hates int64) {
	for _, r := range m.Reactions {
		switch r.Kind {
		case ReactionLike:
			likes++
		case ReactionHate:
			hates++
		}
	}
	return likes, hates
}

// SortReactions orders reactions by user ID in place.
func SortReactions(rs []Reaction) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].UserID < rs[j].UserID })
}
