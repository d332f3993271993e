// ABOUTME: Tests for the client message ID cache
// ABOUTME: Validates per-sender scoping, TTL expiry, size limits, release and concurrency safety

package dedupe

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return newCache(ttl, maxSize, clock.Now), clock
}

func TestCache_ClaimOnce(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)

	assert.True(t, cache.Claim(5, "abc"))
	assert.False(t, cache.Claim(5, "abc"), "resend within TTL is a duplicate")
	assert.Equal(t, 1, cache.Len())
}

func TestCache_ScopedPerSender(t *testing.T) {
	cache, _ := newTestCache(5*time.Minute, 100)

	assert.True(t, cache.Claim(5, "abc"))
	assert.True(t, cache.Claim(9, "abc"), "another sender may reuse the id")
	assert.True(t, cache.Claim(5, "abd"))
}

func TestCache_Expiry(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)

	assert.True(t, cache.Claim(5, "abc"))
	clock.Advance(59 * time.Second)
	assert.False(t, cache.Claim(5, "abc"))

	clock.Advance(2 * time.Second)
	assert.True(t, cache.Claim(5, "abc"), "expired claim can be reclaimed")
}

func TestCache_Sweep(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 100)

	cache.Claim(5, "old-1")
	cache.Claim(5, "old-2")
	clock.Advance(30 * time.Second)
	cache.Claim(5, "new")

	clock.Advance(45 * time.Second)
	cache.sweep()

	assert.Equal(t, 1, cache.Len())
	assert.False(t, cache.Claim(5, "new"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 3)

	cache.Claim(1, "a")
	cache.Claim(1, "b")
	cache.Claim(1, "c")
	cache.Claim(1, "d")

	assert.Equal(t, 3, cache.Len())
	assert.True(t, cache.Claim(1, "a"), "oldest key was evicted")
	assert.False(t, cache.Claim(1, "d"))
}

func TestCache_Release(t *testing.T) {
	cache, _ := newTestCache(time.Hour, 10)

	assert.True(t, cache.Claim(5, "abc"))
	cache.Release(5, "abc")
	assert.Zero(t, cache.Len())
	assert.True(t, cache.Claim(5, "abc"))

	// Releasing an unknown key is harmless.
	cache.Release(9, "zzz")
}

func TestCache_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	cache := New(time.Minute, 1000)
	defer cache.Close()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if cache.Claim(5, "same") {
				wins.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New(time.Minute, 50)
	defer cache.Close()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Go(func() {
			for i := range 200 {
				id := strconv.Itoa(i)
				cache.Claim(int64(g), id)
				if i%5 == 0 {
					cache.Release(int64(g), id)
				}
			}
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 50)
}

func TestCache_CloseIdempotent(t *testing.T) {
	cache := New(time.Minute, 10)
	cache.Close()
	cache.Close()
}
