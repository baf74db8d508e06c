package pkg

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// MemoryStorage is a thread-safe in-memory key/value map with access
// statistics. Nodes keep their primary and replica records in separate
// instances.
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed atomic.Bool

	// Metrics for monitoring
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrContextCanceled
	default:
		return nil
	}
}

// Get retrieves the value associated with the given key.
// Returns ErrKeyNotFound if the key doesn't exist.
func (ms *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if ms.closed.Load() {
		return nil, ErrStorageUnavailable
	}

	ms.mu.RLock()
	value, exists := ms.data[key]
	ms.mu.RUnlock()

	if !exists {
		ms.misses.Add(1)
		return nil, ErrKeyNotFound
	}
	ms.hits.Add(1)

	// Return a copy of the value to prevent external modification
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Has reports whether key is stored. It does not touch hit/miss counters.
func (ms *MemoryStorage) Has(key string) bool {
	if ms.closed.Load() {
		return false
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.data[key]
	return ok
}

// Set stores a value under key, overwriting any previous value.
func (ms *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if ms.closed.Load() {
		return ErrStorageUnavailable
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	ms.mu.Lock()
	ms.data[key] = valueCopy
	ms.mu.Unlock()

	ms.sets.Add(1)
	return nil
}

// Delete removes the key and its associated value from storage.
// It reports whether the key was present.
func (ms *MemoryStorage) Delete(ctx context.Context, key string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	if ms.closed.Load() {
		return false, ErrStorageUnavailable
	}

	ms.mu.Lock()
	_, existed := ms.data[key]
	delete(ms.data, key)
	ms.mu.Unlock()

	if existed {
		ms.deletes.Add(1)
	}
	return existed, nil
}

// GetAll returns a copy of every key-value pair in storage.
func (ms *MemoryStorage) GetAll(ctx context.Context) (map[string][]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if ms.closed.Load() {
		return nil, ErrStorageUnavailable
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	result := make(map[string][]byte, len(ms.data))
	for key, value := range ms.data {
		v := make([]byte, len(value))
		copy(v, value)
		result[key] = v
	}
	return result, nil
}

// Keys returns the stored keys in ascending order.
func (ms *MemoryStorage) Keys() []string {
	if ms.closed.Load() {
		return nil
	}

	ms.mu.RLock()
	keys := make([]string, 0, len(ms.data))
	for key := range ms.data {
		keys = append(keys, key)
	}
	ms.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Len returns the number of stored entries.
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.data)
}

// Clear removes all entries from storage but keeps it operational.
func (ms *MemoryStorage) Clear() error {
	if ms.closed.Load() {
		return ErrStorageUnavailable
	}

	ms.mu.Lock()
	ms.data = make(map[string][]byte)
	ms.mu.Unlock()

	return nil
}

// Close drops all data. Later calls fail with ErrStorageUnavailable.
func (ms *MemoryStorage) Close() error {
	if !ms.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	ms.mu.Lock()
	ms.data = make(map[string][]byte)
	ms.mu.Unlock()

	return nil
}

// Stats holds storage statistics.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
}

// GetStats returns current storage statistics.
func (ms *MemoryStorage) GetStats() Stats {
	ms.mu.RLock()
	entries := len(ms.data)
	ms.mu.RUnlock()

	return Stats{
		Entries: entries,
		Hits:    ms.hits.Load(),
		Misses:  ms.misses.Load(),
		Sets:    ms.sets.Load(),
		Deletes: ms.deletes.Load(),
	}
}
