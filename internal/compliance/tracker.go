package compliance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"cashkiosk/internal/customer/models"
	"cashkiosk/pkg/requestcontext"
)

//go:generate mockgen -source=tracker.go -destination=mocks/mocks.go -package=mocks Store

// Store persists override audit records. Implementations must join the
// transaction carried in ctx so the record commits with the customer row.
type Store interface {
	CreateOverride(ctx context.Context, override *Override) error
}

// Tracker detects override fields in a customer patch and persists their
// audit records.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger sets a logger for override records.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker constructs a Tracker.
func NewTracker(store Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("override store is required")
	}
	t := &Tracker{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Record writes one audit record per override set in patch. It stops at the
// first failure; inside a transaction the caller's rollback discards the
// records already written. Records only count as recorded once the caller's
// transaction commits.
func (t *Tracker) Record(ctx context.Context, customerID uuid.UUID, patch models.Patch, actor string) ([]*Override, error) {
	overrides := Detect(customerID, patch, actor, requestcontext.Now(ctx))
	for _, o := range overrides {
		if err := t.store.CreateOverride(ctx, o); err != nil {
			return nil, fmt.Errorf("record %s override: %w", o.ComplianceType, err)
		}
		if t.logger != nil {
			t.logger.InfoContext(ctx, "compliance override recorded",
				"customer_id", customerID,
				"compliance_type", o.ComplianceType,
				"actor_id", actor,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	return overrides, nil
}
