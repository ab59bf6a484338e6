package queue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionLogAppendsLines(t *testing.T) {
	dir := t.TempDir()
	l := NewReactionLog(filepath.Join(dir, "logs"))

	for _, ev := range []ReactionChangedEvent{
		{EventID: "e1", MovieID: 7, UserID: 2, Op: "add", To: "LIKE", OccurredAt: "t1"},
		{EventID: "e2", MovieID: 7, UserID: 2, Op: "remove", From: "LIKE", OccurredAt: "t2"},
	} {
		body, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, l.Handle(context.Background(), body))
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "reactions.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Reaction add | event_id=e1 | movie_id=7 | user_id=2 | from=NONE | to=LIKE")
	assert.Contains(t, lines[1], "from=LIKE | to=NONE")
}

func TestReactionLogRejectsGarbage(t *testing.T) {
	l := NewReactionLog(t.TempDir())
	assert.Error(t, l.Handle(context.Background(), []byte("{")))
}

func TestNewEventIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewEventID(), NewEventID())
}
