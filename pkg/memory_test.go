package pkg

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStorageGet tests the Get method.
func TestMemoryStorageGet(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	tests := []struct {
		name      string
		setup     func()
		key       string
		wantValue []byte
		wantErr   error
	}{
		{
			name:    "key not found",
			setup:   func() {},
			key:     "nonexistent",
			wantErr: ErrKeyNotFound,
		},
		{
			name: "valid key",
			setup: func() {
				storage.Set(ctx, "test-key", []byte("test-value"))
			},
			key:       "test-key",
			wantValue: []byte("test-value"),
		},
		{
			name: "empty value",
			setup: func() {
				storage.Set(ctx, "empty", []byte{})
			},
			key:       "empty",
			wantValue: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, storage.Clear())
			tt.setup()

			value, err := storage.Get(ctx, tt.key)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err, "Expected specific error")
				return
			}
			require.NoError(t, err, "Get() should not error")
			assert.Equal(t, tt.wantValue, value, "Value should match")
		})
	}
}

// TestMemoryStorageSet tests overwrite and copy semantics of Set.
func TestMemoryStorageSet(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, storage.Set(ctx, "k", []byte("v1")))
		require.NoError(t, storage.Set(ctx, "k", []byte("v2")))

		value, err := storage.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(value))
	})

	t.Run("caller buffer is copied", func(t *testing.T) {
		buf := []byte("original")
		require.NoError(t, storage.Set(ctx, "copy", buf))
		buf[0] = 'X'

		value, err := storage.Get(ctx, "copy")
		require.NoError(t, err)
		assert.Equal(t, "original", string(value))

		value[0] = 'Y'
		again, _ := storage.Get(ctx, "copy")
		assert.Equal(t, "original", string(again))
	})
}

// TestMemoryStorageDelete tests the Delete method.
func TestMemoryStorageDelete(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	require.NoError(t, storage.Set(ctx, "k", []byte("v")))

	existed, err := storage.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.False(t, storage.Has("k"))

	existed, err = storage.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed, "deleting a missing key is not an error")
}

func TestMemoryStorageKeysAndGetAll(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	for _, k := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, storage.Set(ctx, k, []byte(k+"-value")))
	}

	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, storage.Keys())
	assert.Equal(t, 3, storage.Len())

	all, err := storage.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "bravo-value", string(all["bravo"]))
}

// TestMemoryStorageConcurrentAccess tests thread safety.
func TestMemoryStorageConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	const (
		numGoroutines = 50
		numOperations = 100
	)

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j%10)
				switch j % 4 {
				case 0:
					storage.Set(ctx, key, []byte("value"))
				case 1:
					storage.Get(ctx, key)
				case 2:
					storage.Delete(ctx, key)
				default:
					storage.Keys()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := storage.GetStats()
	assert.Equal(t, int64(numGoroutines*numOperations/4), stats.Sets)
	assert.Equal(t, int64(numGoroutines*numOperations/4), stats.Hits+stats.Misses)
}

// TestMemoryStorageContextCancellation tests context cancellation handling.
func TestMemoryStorageContextCancellation(t *testing.T) {
	storage := NewMemoryStorage()
	defer storage.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := storage.Get(ctx, "key")
	assert.Equal(t, ErrContextCanceled, err, "Get with cancelled context should return ErrContextCanceled")

	err = storage.Set(ctx, "key", []byte("value"))
	assert.Equal(t, ErrContextCanceled, err, "Set with cancelled context should return ErrContextCanceled")

	_, err = storage.Delete(ctx, "key")
	assert.Equal(t, ErrContextCanceled, err, "Delete with cancelled context should return ErrContextCanceled")

	_, err = storage.GetAll(ctx)
	assert.Equal(t, ErrContextCanceled, err, "GetAll with cancelled context should return ErrContextCanceled")
}

// TestMemoryStorageClose tests the Close method.
func TestMemoryStorageClose(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	storage.Set(ctx, "key", []byte("value"))

	err := storage.Close()
	assert.NoError(t, err, "Close() should not error")

	_, err = storage.Get(ctx, "key")
	assert.Equal(t, ErrStorageUnavailable, err, "Get after Close should return ErrStorageUnavailable")

	err = storage.Set(ctx, "key", []byte("value"))
	assert.Equal(t, ErrStorageUnavailable, err, "Set after Close should return ErrStorageUnavailable")

	assert.Equal(t, ErrStorageUnavailable, storage.Clear())
	assert.Nil(t, storage.Keys())
	assert.False(t, storage.Has("key"))

	err = storage.Close()
	assert.NoError(t, err, "Second Close() should not return error")
}

// TestMemoryStorageStats tests the statistics functionality.
func TestMemoryStorageStats(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	stats := storage.GetStats()
	assert.Equal(t, Stats{}, stats, "Initial stats should be zero")

	storage.Set(ctx, "key1", []byte("value1"))
	storage.Set(ctx, "key2", []byte("value2"))
	storage.Get(ctx, "key1")        // Hit
	storage.Get(ctx, "nonexistent") // Miss
	storage.Delete(ctx, "key2")     // Delete
	storage.Delete(ctx, "key2")     // Missing, not counted
	storage.Has("key1")             // Not counted

	stats = storage.GetStats()
	assert.Equal(t, Stats{Entries: 1, Hits: 1, Misses: 1, Sets: 2, Deletes: 1}, stats)
}

func BenchmarkMemoryStorageGet(b *testing.B) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	for i := 0; i < 1000; i++ {
		storage.Set(ctx, fmt.Sprintf("key-%d", i), []byte("value"))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		storage.Get(ctx, fmt.Sprintf("key-%d", i%1000))
	}
}

func BenchmarkMemoryStorageSet(b *testing.B) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	defer storage.Close()

	value := []byte("benchmark-value")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		storage.Set(ctx, fmt.Sprintf("key-%d", i%1000), value)
	}
}
