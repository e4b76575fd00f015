package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a stored analysis result for one piece of content
type Entry struct {
	BPM        int       `json:"bpm"`
	Key        string    `json:"key"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store persists analysis results by content ID. Get reports a miss with
// ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, id string) (entry Entry, ok bool, err error)
	Put(ctx context.Context, id string, entry Entry) error
}

// MemoryStore keeps entries in a map
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, id string, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = entry
	return nil
}

// Len returns the number of stored entries
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
