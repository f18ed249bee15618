package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashkiosk/internal/customer/models"
)

func newCustomer(phone string, createdAt time.Time) *models.Customer {
	return &models.Customer{
		ID:        uuid.New(),
		Phone:     phone,
		PhoneAt:   &createdAt,
		CreatedAt: createdAt,
	}
}

func TestInMemoryStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c := newCustomer("+15550001", time.Now())

	require.NoError(t, s.Insert(ctx, c))

	byPhone, err := s.FindByPhone(ctx, c.Phone)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byPhone.ID)

	byID, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Phone, byID.Phone)
}

func TestInMemoryStore_InsertDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.Insert(ctx, newCustomer("+15550001", time.Now())))

	err := s.Insert(ctx, newCustomer("+15550001", time.Now()))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInMemoryStore_FindMissing(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.FindByPhone(ctx, "+19999999")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.UpdateByID(ctx, uuid.New(), models.Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_UpdateTouchesOnlyPatchedFields(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c := newCustomer("+15550001", time.Now())
	name := "Ada"
	c.Name = &name
	require.NoError(t, s.Insert(ctx, c))

	patch, err := models.DefaultRegistry().ParsePatch(map[string]any{"smsOverride": "verified"})
	require.NoError(t, err)

	updated, err := s.UpdateByID(ctx, c.ID, patch.WithAttribution("user-1"))
	require.NoError(t, err)
	require.NotNil(t, updated.SMSOverride)
	assert.Equal(t, "verified", *updated.SMSOverride)
	require.NotNil(t, updated.SMSOverrideBy)
	assert.Equal(t, "user-1", *updated.SMSOverrideBy)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Ada", *updated.Name)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	c := newCustomer("+15550001", time.Now())
	require.NoError(t, s.Insert(ctx, c))

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	name := "mutated"
	got.Name = &name

	again, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Name)
}

func TestInMemoryStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	anonymous := newCustomer("anonymous", base.Add(time.Hour))
	require.NoError(t, s.Insert(ctx, anonymous))
	var ids []uuid.UUID
	for i := range 5 {
		c := newCustomer(fmt.Sprintf("+1555000%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.Insert(ctx, c))
		ids = append(ids, c.ID)
	}

	got, err := s.ListRecent(ctx, anonymous.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ids[4], got[0].ID)
	assert.Equal(t, ids[3], got[1].ID)
	assert.Equal(t, ids[2], got[2].ID)
	for _, c := range got {
		assert.NotEqual(t, anonymous.ID, c.ID)
	}
}

func TestInMemoryStore_ListRecentBreaksTiesByInsertion(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	at := time.Now()
	first := newCustomer("+15550001", at)
	second := newCustomer("+15550002", at)
	require.NoError(t, s.Insert(ctx, first))
	require.NoError(t, s.Insert(ctx, second))

	got, err := s.ListRecent(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
}

func TestInMemoryStore_SumsRespectWindowStart(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	id := uuid.New()
	now := time.Now()
	since := now.Add(-24 * time.Hour)

	s.RecordCashIn(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(10), CreatedAt: now})
	s.RecordCashIn(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(5), CreatedAt: since})
	s.RecordCashIn(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(100), CreatedAt: now.Add(-48 * time.Hour)})
	s.RecordCashOut(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(3), CreatedAt: now})
	s.RecordCashOut(ctx, Transaction{ID: uuid.New(), CustomerID: uuid.New(), Fiat: decimal.NewFromInt(9), CreatedAt: now})

	in, err := s.SumCashInSince(ctx, id, since)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(15).Equal(in))

	out, err := s.SumCashOutSince(ctx, id, since)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(out))

	none, err := s.SumCashOutSince(ctx, uuid.New(), since)
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestInMemoryStore_SumsBetweenExcludeUpperBound(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	id := uuid.New()
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	s.RecordCashIn(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(2), CreatedAt: from})
	s.RecordCashIn(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(20), CreatedAt: to})
	s.RecordCashOut(ctx, Transaction{ID: uuid.New(), CustomerID: id, Fiat: decimal.NewFromInt(4), CreatedAt: to.Add(-time.Nanosecond)})

	in, err := s.SumCashInBetween(ctx, id, from, to)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(in))

	out, err := s.SumCashOutBetween(ctx, id, from, to)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(out))
}
