// Package queue defines message payloads exchanged over the message broker
// and the consumers that process them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue names.  Both queues are durable.
const (
	ReactionChangedQueue = "reaction.changed"
	CounterDriftQueue    = "counter.drift"
)

// ReactionChangedEvent is published after a reaction operation committed
// both its reaction set write and its counter adjustment.  From and To are
// "" (no reaction), "LIKE" or "HATE".
type ReactionChangedEvent struct {
	EventID    string `json:"event_id"`
	MovieID    uint64 `json:"movie_id"`
	UserID     uint64 `json:"user_id"`
	Op         string `json:"op"`
	From       string `json:"from"`
	To         string `json:"to"`
	OccurredAt string `json:"occurred_at"`
}

// CounterDriftEvent is published when the reaction set of a movie was
// written but the counter adjustment that should follow failed.  Consumers
// recount the movie's counters from its reactions.
type CounterDriftEvent struct {
	EventID    string `json:"event_id"`
	MovieID    uint64 `json:"movie_id"`
	Op         string `json:"op"`
	Reason     string `json:"reason"`
	DetectedAt string `json:"detected_at"`
}

// NewEventID returns a random identifier for an event.
func NewEventID() string { return uuid.NewString() }

// Timestamp formats t the way events carry times.
func Timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
