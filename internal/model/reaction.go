package model

import (
	"errors"
	"fmt"
	"strings"
)

// ReactionKind is a user's stance on a movie.  The values match the
// movie_reactions.reaction ENUM column.
type ReactionKind string

const (
	ReactionLike ReactionKind = "LIKE"
	ReactionHate ReactionKind = "HATE"
)

// ParseReactionKind accepts "like"/"hate" in any case.
func ParseReactionKind(s string) (ReactionKind, error) {
	k := ReactionKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown reaction %q", s)
	}
	return k, nil
}

func (k ReactionKind) Valid() bool { return k == ReactionLike || k == ReactionHate }

// Opposite returns the other kind.
func (k ReactionKind) Opposite() ReactionKind {
	if k == ReactionLike {
		return ReactionHate
	}
	return ReactionLike
}

// Verb is the lower-case form used in user-facing messages ("like", "hate").
func (k ReactionKind) Verb() string { return strings.ToLower(string(k)) }

// Reaction is a (user, kind) pair owned by exactly one movie.
type Reaction struct {
	UserID uint64       // movie_reactions.user_id
	Kind   ReactionKind // movie_reactions.reaction
}

// CounterDelta describes a ±1 change to one of the movie counters.
type CounterDelta struct {
	Kind  ReactionKind
	Delta int
}

// ReactionState is the per-user, per-movie state.
type ReactionState int

const (
	StateNone ReactionState = iota
	StateLiked
	StateHated
)

func (s ReactionState) String() string {
	switch s {
	case StateLiked:
		return "LIKED"
	case StateHated:
		return "HATED"
	default:
		return "NONE"
	}
}

// Kind returns the reaction kind a state corresponds to; StateNone has none.
func (s ReactionState) Kind() (ReactionKind, bool) {
	switch s {
	case StateLiked:
		return ReactionLike, true
	case StateHated:
		return ReactionHate, true
	}
	return "", false
}

// StateOf maps a possibly absent reaction to its state.
func StateOf(r Reaction, ok bool) ReactionState {
	if !ok {
		return StateNone
	}
	if r.Kind == ReactionLike {
		return StateLiked
	}
	return StateHated
}

func stateFor(k ReactionKind) ReactionState {
	if k == ReactionLike {
		return StateLiked
	}
	return StateHated
}

// ReactionOp names a transition of the reaction state machine.
type ReactionOp string

const (
	OpAdd    ReactionOp = "add"
	OpRemove ReactionOp = "remove"
	OpSwitch ReactionOp = "switch"
)

var (
	// ErrAlreadyReacted rejects add from LIKED or HATED.
	ErrAlreadyReacted = errors.New("reaction already exists")
	// ErrNoReaction rejects remove and switch from NONE.
	ErrNoReaction = errors.New("no reaction to act on")
	// ErrUnknownTransition is returned for an op outside add/remove/switch
	// or an add without a valid kind.
	ErrUnknownTransition = errors.New("unknown reaction transition")
)

// Transition applies op to state and returns the next state together with
// the counter deltas it implies.  Decrements are always listed before
// increments so a store that cannot update both counters atomically never
// double-counts.
//
//	NONE  --add(LIKE)--> LIKED    +like
//	NONE  --add(HATE)--> HATED    +hate
//	LIKED --remove-->    NONE     -like
//	HATED --remove-->    NONE     -hate
//	LIKED --switch-->    HATED    -like +hate
//	HATED --switch-->    LIKED    -hate +like
func Transition(state ReactionState, op ReactionOp, kind ReactionKind) (ReactionState, []CounterDelta, error) {
	switch op {
	case OpAdd:
		if !kind.Valid() {
			return state, nil, ErrUnknownTransition
		}
		if state != StateNone {
			return state, nil, ErrAlreadyReacted
		}
		return stateFor(kind), []CounterDelta{{Kind: kind, Delta: 1}}, nil
	case OpRemove:
		cur, ok := state.Kind()
		if !ok {
			return state, nil, ErrNoReaction
		}
		return StateNone, []CounterDelta{{Kind: cur, Delta: -1}}, nil
	case OpSwitch:
		cur, ok := state.Kind()
		if !ok {
			return state, nil, ErrNoReaction
		}
		next := cur.Opposite()
		return stateFor(next), []CounterDelta{{Kind: cur, Delta: -1}, {Kind: next, Delta: 1}}, nil
	}
	return state, nil, ErrUnknownTransition
}
