package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/metrics"
	"github.com/iliyamo/movierama/internal/queue"
)

const (
	publishTimeout = 2 * time.Second
	dialTimeout    = 2 * time.Second
)

// EventPublisher implements Events on top of RabbitMQ.  It keeps one
// connection and channel open and redials after a failure.  Publishing is
// guarded by a circuit breaker: after a few consecutive failures the
// breaker opens and events are dropped immediately instead of waiting on a
// dead broker.  Messages are persistent and go through the default exchange
// with the queue name as routing key.
type EventPublisher struct {
	url     string
	breaker *gobreaker.CircuitBreaker[interface{}]

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewEventPublisher returns a publisher for url.  No connection is made
// until the first event.
func NewEventPublisher(url string) *EventPublisher {
	settings := gobreaker.Settings{
		Name:        "amqp-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("publisher circuit breaker changed state")
		},
	}
	return &EventPublisher{
		url:     url,
		breaker: gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// ReactionChanged publishes ev to the reaction.changed queue.
func (p *EventPublisher) ReactionChanged(ctx context.Context, ev queue.ReactionChangedEvent) {
	p.publishLogged(ctx, queue.ReactionChangedQueue, ev.EventID, ev)
}

// CounterDrift publishes ev to the counter.drift queue.
func (p *EventPublisher) CounterDrift(ctx context.Context, ev queue.CounterDriftEvent) {
	p.publishLogged(ctx, queue.CounterDriftQueue, ev.EventID, ev)
}

// State reports the breaker state ("closed", "half-open", "open").
func (p *EventPublisher) State() string { return p.breaker.State().String() }

// Close shuts the channel and connection down.
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetLocked()
}

func (p *EventPublisher) publishLogged(ctx context.Context, queueName, eventID string, v any) {
	err := p.Publish(ctx, queueName, v)
	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(queueName, result).Inc()
	if err != nil {
		logging.Warn().Err(err).Str("queue", queueName).Str("event_id", eventID).Msg("event not published")
	}
}

// Publish marshals v as JSON and sends it to queueName.
func (p *EventPublisher) Publish(ctx context.Context, queueName string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.send(ctx, queueName, body)
	})
	return err
}

func (p *EventPublisher) send(ctx context.Context, queueName string, body []byte) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.discard(ch)
		return fmt.Errorf("queue declare: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(pctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.discard(ch)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the open channel or dials a new one.  The dial happens
// without holding p.mu; when two callers redial at once the first one
// stored wins and the other connection is closed.
func (p *EventPublisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	p.mu.Unlock()

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		_ = ch.Close()
		_ = conn.Close()
		return p.ch, nil
	}
	_ = p.resetLocked()
	p.conn, p.ch = conn, ch
	return ch, nil
}

// discard drops ch if it is still the current channel.
func (p *EventPublisher) discard(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		_ = p.resetLocked()
	}
}

func (p *EventPublisher) resetLocked() error {
	var err error
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err = p.conn.Close()
		p.conn = nil
	}
	return err
}
