package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/example/emergency-dispatch/internal/models"
)

// EventStore is the journal of status events, one row per tracker change.
// It is an audit trail; trackers are never rebuilt from it.
type EventStore interface {
	Append(ctx context.Context, ev models.StatusEvent) error
	List(ctx context.Context, requestID string) ([]models.StatusEvent, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]models.StatusEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]models.StatusEvent)}
}

func (m *MemoryStore) Append(ctx context.Context, ev models.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.RequestID] = append(m.events[ev.RequestID], ev)
	return nil
}

// List returns the request's events ordered by sequence number.
func (m *MemoryStore) List(ctx context.Context, requestID string) ([]models.StatusEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.StatusEvent(nil), m.events[requestID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
