package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"cashkiosk/internal/customer/models"
	"cashkiosk/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists customers in PostgreSQL. Every method joins the
// transaction carried in ctx when there is one.
type PostgresStore struct {
	db       *sql.DB
	registry *models.Registry
	columns  string
}

// NewPostgres constructs a PostgreSQL-backed customer store over the default
// field registry.
func NewPostgres(db *sql.DB) *PostgresStore {
	registry := models.DefaultRegistry()
	cols := []string{"id", "phone", "phone_at", "created_at"}
	for _, f := range registry.Fields() {
		cols = append(cols, f.Column)
	}
	return &PostgresStore{
		db:       db,
		registry: registry,
		columns:  strings.Join(cols, ", "),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanCustomer(row rowScanner) (*models.Customer, error) {
	var (
		c  models.Customer
		id string
	)
	dest := []any{&id, &c.Phone, &c.PhoneAt, &c.CreatedAt}
	for _, f := range s.registry.Fields() {
		dest = append(dest, f.Dest(&c))
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse customer id: %w", err)
	}
	c.ID = parsed
	return &c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *models.Customer) error {
	const query = `
		INSERT INTO customers (id, phone, phone_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, query, c.ID.String(), c.Phone, c.PhoneAt, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	query := `SELECT ` + s.columns + ` FROM customers WHERE phone = $1`
	c, err := s.scanCustomer(tx.Executor(ctx, s.db).QueryRowContext(ctx, query, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find customer by phone: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + s.columns + ` FROM customers WHERE id = $1`
	c, err := s.scanCustomer(tx.Executor(ctx, s.db).QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find customer by id: %w", err)
	}
	return c, nil
}

// UpdateByID writes only the columns named by patch and returns the updated
// row. An empty patch reads the row unchanged.
func (s *PostgresStore) UpdateByID(ctx context.Context, id uuid.UUID, patch models.Patch) (*models.Customer, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}
	entries := patch.Entries()
	sets := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)+1)
	args = append(args, id.String())
	for i, e := range entries {
		sets = append(sets, fmt.Sprintf("%s = $%d", e.Field.Column, i+2))
		args = append(args, e.Value)
	}
	query := `UPDATE customers SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + s.columns

	c, err := s.scanCustomer(tx.Executor(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, excludeID uuid.UUID, limit int) ([]*models.Customer, error) {
	query := `SELECT ` + s.columns + ` FROM customers WHERE id <> $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, query, excludeID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []*models.Customer
	for rows.Next() {
		c, err := s.scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SumCashInSince(ctx context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, "cash_in_txs", ` AND created_at >= $2`, customerID, since)
}

func (s *PostgresStore) SumCashOutSince(ctx context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, "cash_out_txs", ` AND created_at >= $2`, customerID, since)
}

func (s *PostgresStore) SumCashInBetween(ctx context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, "cash_in_txs", ` AND created_at >= $2 AND created_at < $3`, customerID, from, to)
}

func (s *PostgresStore) SumCashOutBetween(ctx context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	return s.sum(ctx, "cash_out_txs", ` AND created_at >= $2 AND created_at < $3`, customerID, from, to)
}

func (s *PostgresStore) sum(ctx context.Context, table, bounds string, customerID uuid.UUID, args ...any) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(fiat), 0) FROM ` + table + ` WHERE customer_id = $1` + bounds
	var total decimal.Decimal
	args = append([]any{customerID.String()}, args...)
	if err := tx.Executor(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum %s: %w", table, err)
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
