package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	node    string
	data    []byte
	updated time.Time
}

// MemoryStore keeps checkpoints in process. Entries are stored serialized so
// callers never share a document with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}}
}

func (m *MemoryStore) Save(_ context.Context, cp *Checkpoint) error {
	data, err := cp.State.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cp.SessionID] = memoryEntry{node: cp.Node, data: data, updated: updated}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	e, ok := m.entries[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(sessionID, e.node, e.data, e.updated)
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
