package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name   string
		state  ReactionState
		op     ReactionOp
		kind   ReactionKind
		next   ReactionState
		deltas []CounterDelta
		err    error
	}{
		{"add like from none", StateNone, OpAdd, ReactionLike, StateLiked, []CounterDelta{{ReactionLike, 1}}, nil},
		{"add hate from none", StateNone, OpAdd, ReactionHate, StateHated, []CounterDelta{{ReactionHate, 1}}, nil},
		{"remove like", StateLiked, OpRemove, "", StateNone, []CounterDelta{{ReactionLike, -1}}, nil},
		{"remove hate", StateHated, OpRemove, "", StateNone, []CounterDelta{{ReactionHate, -1}}, nil},
		{"switch like to hate", StateLiked, OpSwitch, "", StateHated, []CounterDelta{{ReactionLike, -1}, {ReactionHate, 1}}, nil},
		{"switch hate to like", StateHated, OpSwitch, "", StateLiked, []CounterDelta{{ReactionHate, -1}, {ReactionLike, 1}}, nil},
		{"add from liked", StateLiked, OpAdd, ReactionHate, StateLiked, nil, ErrAlreadyReacted},
		{"add from hated", StateHated, OpAdd, ReactionHate, StateHated, nil, ErrAlreadyReacted},
		{"remove from none", StateNone, OpRemove, "", StateNone, nil, ErrNoReaction},
		{"switch from none", StateNone, OpSwitch, "", StateNone, nil, ErrNoReaction},
		{"add without kind", StateNone, OpAdd, "MEH", StateNone, nil, ErrUnknownTransition},
		{"unknown op", StateNone, "toggle", ReactionLike, StateNone, nil, ErrUnknownTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, deltas, err := Transition(tt.state, tt.op, tt.kind)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, tt.state, next)
				assert.Empty(t, deltas)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, next)
			assert.Equal(t, tt.deltas, deltas)
		})
	}
}

func TestTransitionDeltasNetToStateChange(t *testing.T) {
	// The sum of deltas per kind always equals the change in that kind's
	// membership, which is what keeps counters equal to set cardinality.
	count := func(s ReactionState, k ReactionKind) int {
		if got, ok := s.Kind(); ok && got == k {
			return 1
		}
		return 0
	}
	for _, st := range []ReactionState{StateNone, StateLiked, StateHated} {
		for _, op := range []ReactionOp{OpAdd, OpRemove, OpSwitch} {
			for _, k := range []ReactionKind{ReactionLike, ReactionHate} {
				next, deltas, err := Transition(st, op, k)
				if err != nil {
					continue
				}
				net := map[ReactionKind]int{}
				for _, d := range deltas {
					net[d.Kind] += d.Delta
				}
				for _, kk := range []ReactionKind{ReactionLike, ReactionHate} {
					assert.Equal(t, count(next, kk)-count(st, kk), net[kk], "%s %s %s", st, op, kk)
				}
			}
		}
	}
}

func TestParseReactionKind(t *testing.T) {
	k, err := ParseReactionKind(" like ")
	require.NoError(t, err)
	assert.Equal(t, ReactionLike, k)

	k, err = ParseReactionKind("HATE")
	require.NoError(t, err)
	assert.Equal(t, ReactionHate, k)

	_, err = ParseReactionKind("love")
	assert.Error(t, err)
}

func TestReactionsAfter(t *testing.T) {
	m := &Movie{PublishedBy: 1, Reactions: []Reaction{{UserID: 3, Kind: ReactionHate}, {UserID: 2, Kind: ReactionLike}}}

	got := m.ReactionsAfter(4, StateLiked)
	assert.Equal(t, []Reaction{{2, ReactionLike}, {3, ReactionHate}, {4, ReactionLike}}, got)

	got = m.ReactionsAfter(2, StateHated)
	assert.Equal(t, []Reaction{{2, ReactionHate}, {3, ReactionHate}}, got)

	got = m.ReactionsAfter(3, StateNone)
	assert.Equal(t, []Reaction{{2, ReactionLike}}, got)

	// the original slice is untouched
	assert.Len(t, m.Reactions, 2)
	likes, hates := m.CountKinds()
	assert.EqualValues(t, 1, likes)
	assert.EqualValues(t, 1, hates)
}
