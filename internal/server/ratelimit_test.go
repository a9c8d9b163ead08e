package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limiterAt(c *fakeClock, l RateLimitConfig) *RateLimiter {
	rl := NewRateLimiter(l)
	rl.now = c.now
	return rl
}

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{})
	for range 100 {
		require.NoError(t, rl.Allow("client", 1<<20))
	}
	usage := rl.Usage("client")
	assert.Equal(t, 100, usage.Today)
	assert.Equal(t, int64(100<<20), usage.BytesToday)
}

func TestRateLimiter_MinuteWindowSlides(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerMinute: 2})

	require.NoError(t, rl.Allow("a", 0))
	clock.advance(20 * time.Second)
	require.NoError(t, rl.Allow("a", 0))

	clock.advance(10 * time.Second)
	err := rl.Allow("a", 0)
	var windowErr *RateLimitError
	require.True(t, errors.As(err, &windowErr))
	assert.Equal(t, "minute", windowErr.Window)
	assert.Equal(t, 2, windowErr.Limit)
	// The first request leaves the window 30s from now.
	assert.Equal(t, 30*time.Second, windowErr.RetryAfter)

	// Traffic that keeps arriving does not reset the window; expiry does.
	clock.advance(30 * time.Second)
	require.NoError(t, rl.Allow("a", 0))
	require.Error(t, rl.Allow("a", 0))
}

func TestRateLimiter_HourWindow(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerHour: 3})

	for range 3 {
		require.NoError(t, rl.Allow("a", 0))
		clock.advance(5 * time.Minute)
	}
	var windowErr *RateLimitError
	require.ErrorAs(t, rl.Allow("a", 0), &windowErr)
	assert.Equal(t, "hour", windowErr.Window)
	assert.Equal(t, 45*time.Minute, windowErr.RetryAfter)

	clock.advance(45 * time.Minute)
	assert.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerMinute: 1})

	require.NoError(t, rl.Allow("a", 0))
	for range 5 {
		require.Error(t, rl.Allow("a", 0))
	}
	assert.Equal(t, 1, rl.Usage("a").LastMinute)

	clock.advance(time.Minute)
	assert.NoError(t, rl.Allow("a", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	tests := []struct {
		name     string
		limits   RateLimitConfig
		sizes    []int64
		resource string
		used     int64
	}{
		{
			name:     "requests",
			limits:   RateLimitConfig{MaxRequestsPerDay: 2},
			sizes:    []int64{1, 1, 1},
			resource: "requests",
			used:     2,
		},
		{
			name:     "data",
			limits:   RateLimitConfig{MaxDataPerDay: 1000},
			sizes:    []int64{600, 400, 1},
			resource: "data",
			used:     1000,
		},
		{
			name:     "single oversized request",
			limits:   RateLimitConfig{MaxDataPerDay: 1000},
			sizes:    []int64{1001},
			resource: "data",
			used:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			rl := limiterAt(clock, tt.limits)

			var err error
			for _, size := range tt.sizes {
				if err = rl.Allow("a", size); err != nil {
					break
				}
			}
			var quotaErr *QuotaExceededError
			require.ErrorAs(t, err, &quotaErr)
			assert.Equal(t, tt.resource, quotaErr.Resource)
			assert.Equal(t, tt.used, quotaErr.Used)
			assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), quotaErr.Resets)
		})
	}
}

func TestRateLimiter_QuotaResetsAtMidnight(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{MaxRequestsPerDay: 1})

	require.NoError(t, rl.Allow("a", 0))
	require.Error(t, rl.Allow("a", 0))

	clock.advance(14 * time.Hour)
	require.NoError(t, rl.Allow("a", 0))
	assert.Equal(t, 1, rl.Usage("a").Today)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})

	require.NoError(t, rl.Allow("a", 0))
	require.NoError(t, rl.Allow("b", 0))
	assert.Error(t, rl.Allow("a", 0))
	assert.Error(t, rl.Allow("b", 0))
	assert.Equal(t, Usage{}, rl.Usage("unknown"))
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerMinute: 10})

	require.NoError(t, rl.Allow("idle", 0))
	clock.advance(23 * time.Hour)
	require.NoError(t, rl.Allow("active", 0))
	assert.Equal(t, 2, rl.Clients())

	clock.advance(2 * time.Hour)
	require.NoError(t, rl.Allow("active", 0))
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimiter_UsageWindows(t *testing.T) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{})

	require.NoError(t, rl.Allow("a", 10))
	clock.advance(2 * time.Minute)
	require.NoError(t, rl.Allow("a", 20))

	assert.Equal(t, Usage{LastMinute: 1, LastHour: 2, Today: 2, BytesToday: 30}, rl.Usage("a"))

	clock.advance(time.Hour)
	assert.Equal(t, Usage{LastMinute: 0, LastHour: 0, Today: 2, BytesToday: 30}, rl.Usage("a"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("shared", 0) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestLimitErrorMessages(t *testing.T) {
	windowErr := &RateLimitError{Window: "minute", Limit: 10, RetryAfter: 29500 * time.Millisecond}
	assert.Equal(t, "rate limit exceeded: 10 requests per minute, retry in 30s", windowErr.Error())

	quotaErr := &QuotaExceededError{
		Resource: "data",
		Limit:    1000,
		Used:     900,
		Resets:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "daily data quota exhausted (900 of 1000 used), resets at 2026-03-15T00:00:00Z", quotaErr.Error())
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	clock := newFakeClock()
	rl := limiterAt(clock, RateLimitConfig{RequestsPerMinute: 120, RequestsPerHour: 7200})
	for b.Loop() {
		clock.advance(time.Second)
		_ = rl.Allow("bench", 1024)
	}
}
