package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock drives limiter time deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	l := New(cfg)
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	for i := 0; i < 5; i++ {
		assert.True(t, l.IsAllowed("client-a"), "request %d should be admitted", i+1)
	}
	assert.False(t, l.IsAllowed("client-a"), "6th request should be denied")
}

func TestLimiter_RefillAfterOneSecond(t *testing.T) {
	// 60 req/min refills one token per second.
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	for i := 0; i < 5; i++ {
		assert.True(t, l.IsAllowed("client-a"))
	}
	assert.False(t, l.IsAllowed("client-a"))

	clock.Advance(1 * time.Second)
	assert.True(t, l.IsAllowed("client-a"), "one token should have refilled")
	assert.False(t, l.IsAllowed("client-a"))
}

func TestLimiter_RefillCapsAtCapacity(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	assert.True(t, l.IsAllowed("client-a"))
	clock.Advance(1 * time.Hour)
	assert.Equal(t, 5, l.Remaining("client-a"))
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 2, Enabled: true})

	assert.True(t, l.IsAllowed("client-a"))
	assert.True(t, l.IsAllowed("client-a"))
	assert.False(t, l.IsAllowed("client-a"))

	assert.True(t, l.IsAllowed("client-b"), "client-b has its own bucket")
}

func TestLimiter_Disabled(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 1, BurstSize: 1, Enabled: false})

	for i := 0; i < 100; i++ {
		assert.True(t, l.IsAllowed("client-a"))
	}
	assert.Equal(t, 1, l.Remaining("client-a"))
	assert.Empty(t, l.buckets, "disabled limiter should not track clients")
}

func TestLimiter_BlockOverridesBucket(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	l.BlockClient("client-a", 30*time.Second)
	assert.False(t, l.IsAllowed("client-a"), "blocked client denied despite full bucket")

	clock.Advance(31 * time.Second)
	assert.True(t, l.IsAllowed("client-a"), "block expired")

	stats := l.GetStats()
	assert.Equal(t, 0, stats.BlockedClients, "expired block should be removed")
}

func TestLimiter_UnblockRestoresService(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	l.BlockClient("client-a", time.Hour)
	assert.False(t, l.IsAllowed("client-a"))

	l.UnblockClient("client-a")
	assert.True(t, l.IsAllowed("client-a"))
}

func TestLimiter_ResetClient(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 2, Enabled: true})

	assert.True(t, l.IsAllowed("client-a"))
	assert.True(t, l.IsAllowed("client-a"))
	assert.False(t, l.IsAllowed("client-a"))

	l.ResetClient("client-a")
	assert.True(t, l.IsAllowed("client-a"), "reset client starts with a full bucket")
}

func TestLimiter_ResetAfter(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 5, Enabled: true})

	assert.Equal(t, time.Duration(0), l.ResetAfter("client-a"))

	l.IsAllowed("client-a")
	l.IsAllowed("client-a")
	assert.Equal(t, 2*time.Second, l.ResetAfter("client-a"))
}

func TestLimiter_Stats(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 120, BurstSize: 10, Enabled: true})

	l.IsAllowed("client-a")
	l.IsAllowed("client-b")
	l.BlockClient("client-c", time.Minute)

	stats := l.GetStats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 120, stats.RequestsPerMinute)
	assert.Equal(t, 10, stats.BurstSize)
	assert.Equal(t, 2, stats.ActiveClients)
	assert.Equal(t, 1, stats.BlockedClients)
}

func TestLimiter_ConcurrentConsume(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 60, BurstSize: 50, Enabled: true})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.IsAllowed("client-a") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted, "exactly burst-size requests admitted")
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(Config{Enabled: true})
	stats := l.GetStats()
	assert.Equal(t, 60, stats.RequestsPerMinute)
	assert.Equal(t, 60, stats.BurstSize)
}
