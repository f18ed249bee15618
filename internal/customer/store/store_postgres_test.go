package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashkiosk/internal/customer/models"
	txcontext "cashkiosk/pkg/platform/tx"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewPostgres(db), mock, db
}

func customerColumns() []string {
	cols := []string{"id", "phone", "phone_at", "created_at"}
	for _, f := range models.DefaultRegistry().Fields() {
		cols = append(cols, f.Column)
	}
	return cols
}

// customerRow builds a result row with every optional column null except the
// ones given in set.
func customerRow(id uuid.UUID, phone string, createdAt time.Time, set map[string]driver.Value) []driver.Value {
	row := []driver.Value{id.String(), phone, createdAt, createdAt}
	for _, f := range models.DefaultRegistry().Fields() {
		row = append(row, set[f.Column])
	}
	return row
}

func TestPostgresStore_Insert(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	c := newCustomer("+15550001", time.Now())
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customers")).
		WithArgs(c.ID.String(), c.Phone, *c.PhoneAt, c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Insert(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertDuplicatePhone(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customers")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.Insert(context.Background(), newCustomer("+15550001", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPostgresStore_InsertOtherFailureIsWrapped(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	boom := errors.New("connection refused")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customers")).WillReturnError(boom)

	err := s.Insert(context.Background(), newCustomer("+15550001", time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestPostgresStore_FindByPhone(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	createdAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	idCardAt := createdAt.Add(time.Hour)
	rows := sqlmock.NewRows(customerColumns()).AddRow(customerRow(id, "+15550001", createdAt, map[string]driver.Value{
		"id_card_at":                   idCardAt,
		"sanctions":                    true,
		"front_facing_cam_override":    "ok",
		"front_facing_cam_override_by": "user-42",
	})...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE phone = $1")).
		WithArgs("+15550001").
		WillReturnRows(rows)

	c, err := s.FindByPhone(context.Background(), "+15550001")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	require.NotNil(t, c.IDCardAt)
	assert.True(t, idCardAt.Equal(*c.IDCardAt))
	require.NotNil(t, c.Sanctions)
	assert.True(t, *c.Sanctions)
	require.NotNil(t, c.FrontFacingCamOverrideBy)
	assert.Equal(t, "user-42", *c.FrontFacingCamOverrideBy)
	assert.Nil(t, c.SMSOverride)
}

func TestPostgresStore_FindByIDMissing(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM customers WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(customerColumns()))

	_, err := s.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateByIDSetsOnlyPatchedColumns(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"frontFacingCamOverride": "ok"})
	require.NoError(t, err)
	patch = patch.WithAttribution("user-42")

	createdAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE customers SET front_facing_cam_override = $2, front_facing_cam_override_by = $3 WHERE id = $1 RETURNING id, phone",
	)).
		WithArgs(id.String(), "ok", "user-42").
		WillReturnRows(sqlmock.NewRows(customerColumns()).AddRow(customerRow(id, "+15550001", createdAt, map[string]driver.Value{
			"front_facing_cam_override":    "ok",
			"front_facing_cam_override_by": "user-42",
		})...))

	c, err := s.UpdateByID(context.Background(), id, patch)
	require.NoError(t, err)
	require.NotNil(t, c.FrontFacingCamOverride)
	assert.Equal(t, "ok", *c.FrontFacingCamOverride)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateByIDClearsColumn(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"idCardAt": nil})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE customers SET id_card_at = $2 WHERE id = $1")).
		WithArgs(id.String(), nil).
		WillReturnRows(sqlmock.NewRows(customerColumns()).AddRow(customerRow(id, "+15550001", time.Now(), nil)...))

	c, err := s.UpdateByID(context.Background(), id, patch)
	require.NoError(t, err)
	assert.Nil(t, c.IDCardAt)
}

func TestPostgresStore_UpdateByIDMissing(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE customers")).
		WillReturnRows(sqlmock.NewRows(customerColumns()))

	_, err = s.UpdateByID(context.Background(), uuid.New(), patch)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateByIDJoinsCallerTransaction(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectBegin()
	sqlTx, err := db.Begin()
	require.NoError(t, err)
	ctx := txcontext.WithTx(context.Background(), sqlTx)

	id := uuid.New()
	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"name": "Ada"})
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE customers SET name = $2")).
		WillReturnRows(sqlmock.NewRows(customerColumns()).AddRow(customerRow(id, "+15550001", time.Now(), map[string]driver.Value{"name": "Ada"})...))
	mock.ExpectRollback()

	_, err = s.UpdateByID(ctx, id, patch)
	require.NoError(t, err)
	require.NoError(t, sqlTx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecent(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	anonymous := uuid.New()
	newer, older := uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id <> $1 ORDER BY created_at DESC LIMIT $2")).
		WithArgs(anonymous.String(), 100).
		WillReturnRows(sqlmock.NewRows(customerColumns()).
			AddRow(customerRow(newer, "+15550002", now, nil)...).
			AddRow(customerRow(older, "+15550001", now.Add(-time.Hour), nil)...))

	got, err := s.ListRecent(context.Background(), anonymous, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.Equal(t, older, got[1].ID)
}

func TestPostgresStore_Sums(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(fiat), 0) FROM cash_in_txs WHERE customer_id = $1 AND created_at >= $2")).
		WithArgs(id.String(), since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("15.25"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cash_out_txs")).
		WithArgs(id.String(), since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("0"))

	in, err := s.SumCashInSince(context.Background(), id, since)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15.25").Equal(in))

	out, err := s.SumCashOutSince(context.Background(), id, since)
	require.NoError(t, err)
	assert.True(t, out.IsZero())
}

func TestPostgresStore_SumsBetween(t *testing.T) {
	s, mock, db := newMockStore(t)
	defer db.Close()

	id := uuid.New()
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM cash_in_txs WHERE customer_id = $1 AND created_at >= $2 AND created_at < $3")).
		WithArgs(id.String(), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("7.5"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM cash_out_txs WHERE customer_id = $1 AND created_at >= $2 AND created_at < $3")).
		WithArgs(id.String(), from, to).
		WillReturnError(errors.New("connection reset"))

	in, err := s.SumCashInBetween(context.Background(), id, from, to)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.5").Equal(in))

	_, err = s.SumCashOutBetween(context.Background(), id, from, to)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
