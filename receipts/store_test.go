package receipts

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndGet(t *testing.T) {
	store := New(5 * time.Minute)

	record := store.Store("sig-1", "payer-1", 2_000_000, "/api/report/x")
	assert.Equal(t, "sig-1", record.Signature)
	assert.Equal(t, record.CreatedAt.Add(5*time.Minute), record.ExpiresAt)

	got, ok := store.Get("sig-1")
	require.True(t, ok)
	assert.Equal(t, "payer-1", got.Payer)
	assert.Equal(t, uint64(2_000_000), got.Amount)

	assert.True(t, store.IsUsed("sig-1"))
	assert.False(t, store.IsUsed("sig-2"))
}

func TestStoreDuplicateKeepsLaterValues(t *testing.T) {
	store := New(5 * time.Minute)

	store.Store("sig-1", "payer-1", 100, "/a")
	store.Store("sig-1", "payer-2", 200, "/b")

	require.Equal(t, 1, store.Len())
	got, ok := store.Get("sig-1")
	require.True(t, ok)
	assert.Equal(t, "payer-2", got.Payer)
	assert.Equal(t, uint64(200), got.Amount)
	assert.Equal(t, "/b", got.ResourcePath)
}

func TestStoreTTLExpiry(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := New(5*time.Minute, WithClock(func() time.Time { return now }))

	store.Store("sig-1", "payer-1", 100, "/a")
	assert.True(t, store.IsUsed("sig-1"))

	now = now.Add(5*time.Minute - time.Second)
	assert.True(t, store.IsUsed("sig-1"))

	now = now.Add(2 * time.Second)
	assert.False(t, store.IsUsed("sig-1"))

	_, ok := store.Get("sig-1")
	assert.False(t, ok)
}

func TestStorePurgesExpiredOnInsert(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := New(time.Minute, WithClock(func() time.Time { return now }))

	store.Store("old-1", "p", 1, "/a")
	store.Store("old-2", "p", 1, "/a")
	require.Equal(t, 2, store.Len())

	now = now.Add(2 * time.Minute)
	store.Store("fresh", "p", 1, "/a")

	assert.Equal(t, 1, store.Len())
	assert.True(t, store.IsUsed("fresh"))
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sig := string(rune('a' + n))
			store.Store(sig, "payer", uint64(n), "/a")
			store.IsUsed(sig)
			store.Get(sig)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, store.Len())
}
