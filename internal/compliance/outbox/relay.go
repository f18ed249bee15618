// Package outbox relays committed compliance override records to the message
// broker. Records are written to the outbox table in the same transaction as
// the customer update; the relay is the asynchronous phase with its own
// failure channel (attempt counters, logs and metrics), so a broker outage
// never fails or rolls back a customer update.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cashkiosk/pkg/platform/circuit"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = time.Second
	defaultStaleClaim   = 2 * time.Minute
)

// Message is one pending outbox row.
type Message struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}

// Store claims pending messages and records their delivery outcome.
// Claims older than staleBefore are considered abandoned and reclaimable.
type Store interface {
	Claim(ctx context.Context, limit int, staleBefore time.Time) ([]Message, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, payload []byte) error
}

// Metrics observes relay outcomes.
type Metrics interface {
	IncrementOutboxPublished()
	IncrementOutboxFailed()
}

// Relay polls the outbox and publishes pending messages.
type Relay struct {
	store        Store
	publisher    Publisher
	logger       *slog.Logger
	metrics      Metrics
	batchSize    int
	pollInterval time.Duration
	staleClaim   time.Duration
	breaker      *circuit.Breaker
	now          func() time.Time
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithBreaker pauses publishing while the broker keeps failing. Claimed
// messages left behind by an opening breaker are reclaimed once stale.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

// WithClock overrides the relay's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// NewRelay constructs a Relay.
func NewRelay(store Store, publisher Publisher, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	r := &Relay{
		store:        store,
		publisher:    publisher,
		logger:       slog.Default(),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		staleClaim:   defaultStaleClaim,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run flushes the outbox every poll interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many messages were delivered.
// A message that fails to publish is marked failed and retried on a later
// flush; it does not stop the rest of the batch.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	now := r.now()
	if r.breaker != nil && !r.breaker.Allow(now) {
		return 0, nil
	}
	messages, err := r.store.Claim(ctx, r.batchSize, now.Add(-r.staleClaim))
	if err != nil {
		return 0, fmt.Errorf("claim outbox messages: %w", err)
	}

	published := 0
	for _, msg := range messages {
		if err := r.publisher.Publish(ctx, msg.AggregateID, msg.EventType, msg.Payload); err != nil {
			r.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", msg.ID,
				"event_type", msg.EventType,
				"attempts", msg.Attempts+1,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.IncrementOutboxFailed()
			}
			if markErr := r.store.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				return published, fmt.Errorf("mark outbox message failed: %w", markErr)
			}
			if r.breaker != nil && r.breaker.RecordFailure(r.now()) {
				r.logger.WarnContext(ctx, "outbox publisher circuit opened", "breaker", r.breaker.Name())
				return published, nil
			}
			continue
		}
		if r.breaker != nil {
			r.breaker.RecordSuccess()
		}
		if err := r.store.MarkPublished(ctx, msg.ID, r.now()); err != nil {
			return published, fmt.Errorf("mark outbox message published: %w", err)
		}
		if r.metrics != nil {
			r.metrics.IncrementOutboxPublished()
		}
		published++
	}
	return published, nil
}
