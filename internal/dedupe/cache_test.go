// ABOUTME: Tests for the event ID dedupe cache.
// ABOUTME: Validates TTL expiry on a fake clock, size-bounded eviction, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func newFakeCache(ttl time.Duration, maxSize int) (*Cache, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewWithClock(clock, ttl, maxSize), clock
}

func TestCache_Check_NotSeen(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.Check("never-seen"))
}

func TestCache_MarkAndCheck(t *testing.T) {
	cache, _ := newFakeCache(5*time.Minute, 100)
	defer cache.Close()

	cache.Mark("evt-1")
	cache.Mark("evt-2")

	assert.True(t, cache.Check("evt-1"))
	assert.True(t, cache.Check("evt-2"))
	assert.False(t, cache.Check("evt-3"))
	assert.Equal(t, 2, cache.Len())
}

func TestCache_Check_Expired(t *testing.T) {
	cache, clock := newFakeCache(time.Minute, 100)
	defer cache.Close()

	cache.Mark("evt-1")
	assert.True(t, cache.Check("evt-1"))

	clock.Advance(time.Minute)
	assert.False(t, cache.Check("evt-1"))
}

func TestCache_Mark_Refreshes(t *testing.T) {
	cache, clock := newFakeCache(time.Minute, 100)
	defer cache.Close()

	cache.Mark("evt-1")
	clock.Advance(40 * time.Second)
	cache.Mark("evt-1")
	clock.Advance(40 * time.Second)

	// 80s since first mark but only 40s since the refresh
	assert.True(t, cache.Check("evt-1"))
}

func TestCache_EvictionOrder(t *testing.T) {
	cache, _ := newFakeCache(5*time.Minute, 3)
	defer cache.Close()

	cache.Mark("first")
	cache.Mark("second")
	cache.Mark("third")
	cache.Mark("fourth")

	assert.False(t, cache.Check("first"), "oldest id should be evicted")
	assert.True(t, cache.Check("second"))
	assert.True(t, cache.Check("third"))
	assert.True(t, cache.Check("fourth"))

	// Refreshing moves an id to the back of the eviction order
	cache.Mark("second")
	cache.Mark("fifth")

	assert.False(t, cache.Check("third"), "third is now the oldest")
	assert.True(t, cache.Check("second"))
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newFakeCache(time.Minute, 100)
	defer cache.Close()

	cache.Mark("a")
	cache.Mark("b")
	clock.Advance(2 * time.Minute)
	cache.Mark("c")

	cache.sweep()

	assert.Equal(t, 1, cache.Len(), "sweep should drop expired ids only")
	assert.True(t, cache.Check("c"))
}

func TestCache_CheckAndMark(t *testing.T) {
	cache, clock := newFakeCache(time.Minute, 100)
	defer cache.Close()

	assert.False(t, cache.CheckAndMark("evt"), "first sighting is not a duplicate")
	assert.True(t, cache.CheckAndMark("evt"), "second sighting is a duplicate")

	clock.Advance(time.Minute)
	assert.False(t, cache.CheckAndMark("evt"), "expired ids are new again")
}

func TestCache_CheckAndMark_Atomic(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	const numGoroutines = 100

	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !cache.CheckAndMark("contested") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, winners, "exactly one goroutine should see the id as new")
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("evt-%d-%d", id, j)
				cache.Mark(key)
				cache.Check(key)
			}
		}(i)
	}
	wg.Wait()

	cache.Mark("final")
	assert.True(t, cache.Check("final"))
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)

	cache.Close()
	cache.Close()
}

func TestCache_NonPositiveMaxSize(t *testing.T) {
	cache, _ := newFakeCache(time.Minute, 0)
	defer cache.Close()

	cache.Mark("a")
	cache.Mark("b")
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Check("b"))
}
