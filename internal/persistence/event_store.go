package persistence

import (
	"context"
	"sync"

	"github.com/volvoxlabs/weft/pkg/api"
)

// EventStore is an append-only history store for execution events,
// keyed by run id.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.ExecutionEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error)
	DeleteEvents(ctx context.Context, runID string) error
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	return nil, nil
}
func (NoopEventStore) DeleteEvents(ctx context.Context, runID string) error { return nil }

// MemoryEventStore keeps per-run event history in memory.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.ExecutionEvent
}

var _ EventStore = (*MemoryEventStore)(nil)

// NewMemoryEventStore creates an empty MemoryEventStore.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string][]api.ExecutionEvent)}
}

func (s *MemoryEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *MemoryEventStore) ListEvents(ctx context.Context, runID string) ([]api.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[runID]
	out := make([]api.ExecutionEvent, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryEventStore) DeleteEvents(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, runID)
	return nil
}
