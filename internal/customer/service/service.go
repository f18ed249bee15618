// Package service orchestrates customer creation, lookup and compliance
// updates over the customer store, the override tracker and the volume
// aggregator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cashkiosk/internal/compliance"
	"cashkiosk/internal/customer/models"
	dErrors "cashkiosk/pkg/domain-errors"
	"cashkiosk/pkg/platform/sentinel"
	"cashkiosk/pkg/requestcontext"
)

const tracerName = "cashkiosk/customer"

// Store persists customers. Lookups return sentinel.ErrNotFound for unknown
// customers and Insert returns sentinel.ErrConflict for a taken phone.
type Store interface {
	Insert(ctx context.Context, c *models.Customer) error
	FindByPhone(ctx context.Context, phone string) (*models.Customer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateByID(ctx context.Context, id uuid.UUID, patch models.Patch) (*models.Customer, error)
	ListRecent(ctx context.Context, excludeID uuid.UUID, limit int) ([]*models.Customer, error)
}

type OverrideTracker interface {
	Record(ctx context.Context, customerID uuid.UUID, patch models.Patch, actor string) ([]*compliance.Override, error)
}

type VolumeReader interface {
	Daily(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)
}

type Metrics interface {
	IncrementCustomersCreated()
	IncrementCustomersUpdated()
	IncrementOverrideRecorded(complianceType string)
	ObserveOperationDuration(operation string, d time.Duration)
}

// Config is fixed for the lifetime of a Service.
type Config struct {
	// AnonymousCustomerID is the walk-in customer excluded from listings.
	AnonymousCustomerID uuid.UUID
	PageSize            int
	Registry            *models.Registry
}

type Service struct {
	store    Store
	tracker  OverrideTracker
	volume   VolumeReader
	tx       Tx
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the transactional boundary for updates. Defaults to a
// per-customer in-memory lock.
func WithTx(tx Tx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, tracker OverrideTracker, volume VolumeReader, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("customer store is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("override tracker is required")
	}
	if volume == nil {
		return nil, fmt.Errorf("volume reader is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	if cfg.Registry == nil {
		cfg.Registry = models.DefaultRegistry()
	}
	s := &Service{
		store:    store,
		tracker:  tracker,
		volume:   volume,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx()
	}
	return s, nil
}

// Add creates a customer with the given phone, verified as of now.
func (s *Service) Add(ctx context.Context, in models.NewCustomer) (*models.Customer, error) {
	ctx, span := s.startSpan(ctx, "customer.add")
	defer span.End()
	defer s.observe("add", time.Now())

	if err := s.validate.Struct(in); err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeValidation, "invalid phone"))
	}

	now := requestcontext.Now(ctx)
	c := &models.Customer{
		ID:        uuid.New(),
		Phone:     in.Phone,
		PhoneAt:   &now,
		CreatedAt: now,
	}
	if err := s.store.Insert(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeConflict, "phone already registered"))
		}
		s.logger.ErrorContext(ctx, "failed to insert customer",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create customer"))
	}

	if s.metrics != nil {
		s.metrics.IncrementCustomersCreated()
	}
	s.logger.InfoContext(ctx, "customer created",
		"customer_id", c.ID,
		"phone", maskPhone(c.Phone),
		"request_id", requestcontext.RequestID(ctx),
	)
	span.SetAttributes(attribute.String("customer.id", c.ID.String()))
	return c, nil
}

// Get looks a customer up by phone and attaches its daily volume. An unknown
// phone yields (nil, nil).
func (s *Service) Get(ctx context.Context, phone string) (*models.Customer, error) {
	ctx, span := s.startSpan(ctx, "customer.get")
	defer span.End()
	defer s.observe("get", time.Now())

	c, err := s.store.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer"))
	}

	volume, err := s.volume.Daily(ctx, c.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to compute daily volume",
			"customer_id", c.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute daily volume"))
	}
	c.DailyVolume = &volume
	return c, nil
}

// GetByID looks a customer up by id and attaches its status. An unknown id
// yields (nil, nil).
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	ctx, span := s.startSpan(ctx, "customer.get_by_id", attribute.String("customer.id", id.String()))
	defer span.End()
	defer s.observe("get_by_id", time.Now())

	c, err := s.findByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if c == nil {
		return nil, nil
	}
	return c.WithStatus(), nil
}

// Update applies a partial update and records an audit entry for every
// override it sets, both in one transaction. With a non-empty actor each set
// override is attributed to that actor. An empty update changes nothing and
// returns the current customer. An unknown id yields (nil, nil).
func (s *Service) Update(ctx context.Context, id uuid.UUID, data map[string]any, actor string) (*models.Customer, error) {
	ctx, span := s.startSpan(ctx, "customer.update", attribute.String("customer.id", id.String()))
	defer span.End()
	defer s.observe("update", time.Now())

	patch, err := s.cfg.Registry.ParsePatch(data)
	if err != nil {
		return nil, s.fail(span, err)
	}

	if patch.Empty() {
		c, err := s.findByID(ctx, id)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if c == nil {
			return nil, nil
		}
		return c.WithStatus(), nil
	}

	var (
		updated   *models.Customer
		overrides []*compliance.Override
	)
	attributed := patch.WithAttribution(actor)
	err = s.tx.RunInTx(withTxCustomer(ctx, id.String()), func(ctx context.Context) error {
		if tracksUndo(ctx) {
			before, err := s.store.FindByID(ctx, id)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load customer: %w", err)
			}
			onRollback(ctx, func(ctx context.Context) error {
				_, err := s.store.UpdateByID(ctx, id, attributed.Revert(before))
				return err
			})
		}
		c, err := s.store.UpdateByID(ctx, id, attributed)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("update customer: %w", err)
		}
		overrides, err = s.tracker.Record(ctx, id, patch, actor)
		if err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update customer",
			"customer_id", id,
			"actor_id", actor,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return nil, s.fail(span, err)
		}
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update customer"))
	}
	if updated == nil {
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementCustomersUpdated()
		for _, o := range overrides {
			s.metrics.IncrementOverrideRecorded(string(o.ComplianceType))
		}
	}
	s.logger.InfoContext(ctx, "customer updated",
		"customer_id", id,
		"actor_id", actor,
		"fields", patch.Columns(),
		"overrides", len(overrides),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated.WithStatus(), nil
}

// Batch lists the most recent customers, newest first, without the
// anonymous customer.
func (s *Service) Batch(ctx context.Context) ([]*models.Customer, error) {
	ctx, span := s.startSpan(ctx, "customer.batch")
	defer span.End()
	defer s.observe("batch", time.Now())

	customers, err := s.store.ListRecent(ctx, s.cfg.AnonymousCustomerID, s.cfg.PageSize)
	if err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list customers"))
	}
	for _, c := range customers {
		c.WithStatus()
	}
	return customers, nil
}

func (s *Service) findByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load customer")
	}
	return c, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOperationDuration(operation, time.Since(start))
	}
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
