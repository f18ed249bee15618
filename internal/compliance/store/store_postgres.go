package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cashkiosk/internal/compliance"
	"cashkiosk/internal/compliance/outbox"
	"cashkiosk/internal/customer/models"
	txcontext "cashkiosk/pkg/platform/tx"
)

// PostgresStore writes override records to compliance_overrides and, in the
// same transaction, an outbox row for the relay to publish.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateOverride joins the transaction in ctx, or opens its own so the
// record and its outbox row always commit together.
func (s *PostgresStore) CreateOverride(ctx context.Context, override *compliance.Override) error {
	if override == nil {
		return fmt.Errorf("override is required")
	}
	payload, err := json.Marshal(override)
	if err != nil {
		return fmt.Errorf("marshal override payload: %w", err)
	}

	if _, ok := txcontext.From(ctx); ok {
		return s.insert(ctx, override, payload)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.insert(txcontext.WithTx(ctx, tx), override, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, o *compliance.Override, payload []byte) error {
	exec := txcontext.Executor(ctx, s.db)

	const overrideQuery = `
		INSERT INTO compliance_overrides (id, customer_id, compliance_type, override_by, verification, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := exec.ExecContext(ctx, overrideQuery,
		o.ID, o.CustomerID, string(o.ComplianceType), o.OverrideBy, o.Verification, o.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert compliance override: %w", err)
	}

	const outboxQuery = `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := exec.ExecContext(ctx, outboxQuery,
		uuid.New(), "customer", o.CustomerID.String(), compliance.EventOverrideRecorded, payload, o.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByCustomer returns a customer's override records, oldest first.
func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*compliance.Override, error) {
	const query = `
		SELECT id, customer_id, compliance_type, override_by, verification, created_at
		FROM compliance_overrides
		WHERE customer_id = $1
		ORDER BY created_at ASC
	`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("list compliance overrides: %w", err)
	}
	defer rows.Close()

	var out []*compliance.Override
	for rows.Next() {
		var (
			o              compliance.Override
			complianceType string
			overrideBy     sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &complianceType, &overrideBy, &o.Verification, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan compliance override: %w", err)
		}
		o.ComplianceType = models.ComplianceType(complianceType)
		if overrideBy.Valid {
			o.OverrideBy = &overrideBy.String
		}
		out = append(out, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance overrides: %w", err)
	}
	return out, nil
}

// Claim marks up to limit unpublished rows as claimed and returns them.
// SKIP LOCKED lets several relays share the table.
func (s *PostgresStore) Claim(ctx context.Context, limit int, staleBefore time.Time) ([]outbox.Message, error) {
	const query = `
		UPDATE outbox SET claimed_at = now()
		WHERE id IN (
			SELECT id FROM outbox
			WHERE published_at IS NULL
			  AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_id, event_type, payload, attempts, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, limit, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	var out []outbox.Message
	for rows.Next() {
		var m outbox.Message
		if err := rows.Scan(&m.ID, &m.AggregateID, &m.EventType, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE outbox SET published_at = $2 WHERE id = $1`
	return s.execOne(ctx, "mark outbox published", query, id, at)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const query = `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, claimed_at = NULL
		WHERE id = $1
	`
	return s.execOne(ctx, "mark outbox failed", query, id, reason)
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
