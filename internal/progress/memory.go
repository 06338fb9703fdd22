package progress

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend. Records are stored encoded so
// callers never share maps with the backend.
type MemoryBackend struct {
	records map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string][]byte),
	}
}

func (b *MemoryBackend) Get(_ context.Context, userID string) (Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return Decode(data)
}

func (b *MemoryBackend) Put(_ context.Context, userID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[userID] = data
	return nil
}

// Users returns the ids with a stored record.
func (b *MemoryBackend) Users() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	return ids
}

func (b *MemoryBackend) Close() error { return nil }
