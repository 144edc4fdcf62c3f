package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/intakemesh/core"
)

// InMemoryStore is a process-local record repository. It offers:
//  1. Intake records keyed by ticket id, with a per-identity index
//  2. Filtered, newest-first listings and status counts
//
// Concurrency: protected by RWMutex. Records are cloned on the way in and out.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]core.IntakeRecord // ticketID -> record
	order   []string                     // ticket ids in insertion order
}

// NewInMemoryStore creates an empty record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]core.IntakeRecord)}
}

// Create stores a new record. A taken ticket id yields core.ErrDuplicate.
func (m *InMemoryStore) Create(_ context.Context, rec core.IntakeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.TicketID]; exists {
		return fmt.Errorf("ticket %s: %w", rec.TicketID, core.ErrDuplicate)
	}
	m.records[rec.TicketID] = rec.Clone()
	m.order = append(m.order, rec.TicketID)
	return nil
}

// FindByTicket returns the record or core.ErrNotFound.
func (m *InMemoryStore) FindByTicket(_ context.Context, ticketID string) (core.IntakeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[ticketID]
	if !ok {
		return core.IntakeRecord{}, core.ErrNotFound
	}
	return rec.Clone(), nil
}

// FindLatestByIdentity returns the most recently created record of identity.
func (m *InMemoryStore) FindLatestByIdentity(_ context.Context, identity string) (core.IntakeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		if rec := m.records[m.order[i]]; rec.Identity == identity {
			return rec.Clone(), nil
		}
	}
	return core.IntakeRecord{}, core.ErrNotFound
}

// List returns matching records newest first, paged by the filter.
func (m *InMemoryStore) List(_ context.Context, filter core.RecordFilter) ([]core.IntakeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.IntakeRecord, 0)
	for _, id := range m.order {
		if rec := m.records[id]; filter.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []core.IntakeRecord{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Update applies fn to a copy of the record and stores the result atomically.
func (m *InMemoryStore) Update(_ context.Context, ticketID string, fn func(*core.IntakeRecord) error) (core.IntakeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[ticketID]
	if !ok {
		return core.IntakeRecord{}, core.ErrNotFound
	}

	next := rec.Clone()
	if err := fn(&next); err != nil {
		return core.IntakeRecord{}, err
	}
	next.TicketID = ticketID

	m.records[ticketID] = next
	return next.Clone(), nil
}

// CountByStatus returns the number of records per status.
func (m *InMemoryStore) CountByStatus(_ context.Context) (map[core.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[core.Status]int)
	for _, rec := range m.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// IdempotencyStore remembers processed message ids in memory, bounded by
// capacity. The oldest keys are evicted first.
type IdempotencyStore struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	ring     []string
	next     int
	capacity int
}

// NewIdempotencyStore creates a store remembering up to capacity keys.
// A non-positive capacity defaults to 10000.
func NewIdempotencyStore(capacity int) *IdempotencyStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &IdempotencyStore{
		seen:     make(map[string]struct{}, capacity),
		ring:     make([]string, capacity),
		capacity: capacity,
	}
}

// MarkProcessed records key and reports whether it was already present.
func (s *IdempotencyStore) MarkProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return true, nil
	}

	if old := s.ring[s.next]; old != "" {
		delete(s.seen, old)
	}
	s.ring[s.next] = key
	s.next = (s.next + 1) % s.capacity
	s.seen[key] = struct{}{}

	return false, nil
}
