package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cashkiosk/internal/compliance"
	"cashkiosk/internal/compliance/outbox"
)

type memoryMessage struct {
	outbox.Message
	claimedAt   *time.Time
	publishedAt *time.Time
	lastError   string
}

// InMemoryStore keeps override records and their outbox rows in memory.
type InMemoryStore struct {
	mu        sync.Mutex
	overrides []*compliance.Override
	messages  []*memoryMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) CreateOverride(_ context.Context, override *compliance.Override) error {
	if override == nil {
		return fmt.Errorf("override is required")
	}
	payload, err := json.Marshal(override)
	if err != nil {
		return fmt.Errorf("marshal override payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *override
	s.overrides = append(s.overrides, &cp)
	s.messages = append(s.messages, &memoryMessage{Message: outbox.Message{
		ID:          uuid.New(),
		AggregateID: override.CustomerID.String(),
		EventType:   compliance.EventOverrideRecorded,
		Payload:     payload,
		CreatedAt:   override.CreatedAt,
	}})
	return nil
}

// ListByCustomer returns a customer's override records, oldest first.
func (s *InMemoryStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]*compliance.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*compliance.Override
	for _, o := range s.overrides {
		if o.CustomerID == customerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Claim(_ context.Context, limit int, staleBefore time.Time) ([]outbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []outbox.Message
	for _, m := range s.messages {
		if len(out) >= limit {
			break
		}
		if m.publishedAt != nil {
			continue
		}
		if m.claimedAt != nil && !m.claimedAt.Before(staleBefore) {
			continue
		}
		m.claimedAt = &now
		out = append(out, m.Message)
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return err
	}
	m.publishedAt = &at
	return nil
}

func (s *InMemoryStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.find(id)
	if err != nil {
		return err
	}
	m.Attempts++
	m.lastError = reason
	m.claimedAt = nil
	return nil
}

// Pending reports how many outbox rows are still unpublished.
func (s *InMemoryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.publishedAt == nil {
			n++
		}
	}
	return n
}

func (s *InMemoryStore) find(id uuid.UUID) (*memoryMessage, error) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("outbox message %s: %w", id, ErrNotFound)
}
