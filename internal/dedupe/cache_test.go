// ABOUTME: Tests for the seen-message cache
// ABOUTME: Validates duplicate detection, TTL expiry, eviction, and races

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_Seen_FirstDeliveryIsNew(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("msg-1"))
	assert.True(t, cache.Seen("msg-1"))
	assert.True(t, cache.Seen("msg-1"))
}

func TestCache_Seen_DistinctKeys(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("msg-1"))
	assert.False(t, cache.Seen("msg-2"))
	assert.True(t, cache.Seen("msg-1"))
}

func TestCache_Seen_ExpiredEntryIsNewAgain(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	assert.False(t, cache.Seen("msg-1"))

	time.Sleep(20 * time.Millisecond)

	assert.False(t, cache.Seen("msg-1"))
	assert.True(t, cache.Seen("msg-1"))
}

func TestCache_Contains_DoesNotMark(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Contains("msg-1"))
	assert.False(t, cache.Seen("msg-1"))
	assert.True(t, cache.Contains("msg-1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Seen("msg-1")
	cache.Seen("msg-2")
	cache.Seen("msg-3")
	cache.Seen("msg-4")

	assert.False(t, cache.Contains("msg-1"))
	assert.True(t, cache.Contains("msg-2"))
	assert.True(t, cache.Contains("msg-3"))
	assert.True(t, cache.Contains("msg-4"))
}

func TestCache_DuplicateRefreshesOrder(t *testing.T) {
	cache := New(5*time.Minute, 3)
	defer cache.Close()

	cache.Seen("msg-1")
	cache.Seen("msg-2")
	cache.Seen("msg-3")

	// Touching msg-1 moves it to the back, so msg-2 is evicted next.
	cache.Seen("msg-1")
	cache.Seen("msg-4")

	assert.True(t, cache.Contains("msg-1"))
	assert.False(t, cache.Contains("msg-2"))
}

func TestCache_ConcurrentSeen_SingleWinner(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.Seen("contested-key") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestCache_ConcurrentMixedKeys(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Seen(fmt.Sprintf("msg-%d-%d", n, j))
				cache.Contains(fmt.Sprintf("msg-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	cache := New(5*time.Minute, 100)
	cache.Close()
	cache.Close()
}
