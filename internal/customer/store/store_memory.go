package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cashkiosk/internal/customer/models"
)

// Transaction is a cash-in or cash-out movement. Only the fields volume
// aggregation reads are kept.
type Transaction struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Fiat       decimal.Decimal
	CreatedAt  time.Time
}

type memoryRecord struct {
	customer *models.Customer
	seq      int
}

// InMemoryStore keeps customers and their transactions in process memory.
// Records are cloned on the way in and out.
type InMemoryStore struct {
	mu        sync.RWMutex
	customers map[uuid.UUID]*memoryRecord
	byPhone   map[string]uuid.UUID
	cashIn    map[uuid.UUID][]Transaction
	cashOut   map[uuid.UUID][]Transaction
	seq       int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		customers: make(map[uuid.UUID]*memoryRecord),
		byPhone:   make(map[string]uuid.UUID),
		cashIn:    make(map[uuid.UUID][]Transaction),
		cashOut:   make(map[uuid.UUID][]Transaction),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byPhone[c.Phone]; taken {
		return ErrDuplicate
	}
	if _, taken := s.customers[c.ID]; taken {
		return ErrDuplicate
	}
	s.seq++
	s.customers[c.ID] = &memoryRecord{customer: c.Clone(), seq: s.seq}
	s.byPhone[c.Phone] = c.ID
	return nil
}

func (s *InMemoryStore) FindByPhone(_ context.Context, phone string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return s.customers[id].customer.Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.customer.Clone(), nil
}

func (s *InMemoryStore) UpdateByID(_ context.Context, id uuid.UUID, patch models.Patch) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(rec.customer)
	return rec.customer.Clone(), nil
}

// ListRecent returns up to limit customers, newest first, skipping excludeID.
// Customers created at the same instant are ordered by insertion, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, excludeID uuid.UUID, limit int) ([]*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*memoryRecord, 0, len(s.customers))
	for id, rec := range s.customers {
		if id == excludeID {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.customer.CreatedAt.Equal(b.customer.CreatedAt) {
			return a.customer.CreatedAt.After(b.customer.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit >= 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]*models.Customer, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.customer.Clone())
	}
	return out, nil
}

// RecordCashIn stores a cash-in movement for a customer.
func (s *InMemoryStore) RecordCashIn(_ context.Context, t Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashIn[t.CustomerID] = append(s.cashIn[t.CustomerID], t)
}

// RecordCashOut stores a cash-out movement for a customer.
func (s *InMemoryStore) RecordCashOut(_ context.Context, t Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashOut[t.CustomerID] = append(s.cashOut[t.CustomerID], t)
}

func (s *InMemoryStore) SumCashInSince(_ context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRange(s.cashIn[customerID], since, time.Time{}), nil
}

func (s *InMemoryStore) SumCashOutSince(_ context.Context, customerID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRange(s.cashOut[customerID], since, time.Time{}), nil
}

func (s *InMemoryStore) SumCashInBetween(_ context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRange(s.cashIn[customerID], from, to), nil
}

func (s *InMemoryStore) SumCashOutBetween(_ context.Context, customerID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumRange(s.cashOut[customerID], from, to), nil
}

// sumRange counts from <= CreatedAt < to. A zero to has no upper bound.
func sumRange(txs []Transaction, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if t.CreatedAt.Before(from) || (!to.IsZero() && !t.CreatedAt.Before(to)) {
			continue
		}
		total = total.Add(t.Fiat)
	}
	return total
}
