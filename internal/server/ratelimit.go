package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces per-client request windows and daily quotas. Request
// windows slide: a request counts against a window for exactly the window's
// length after it was admitted.
type RateLimiter struct {
	mu        sync.Mutex
	limits    RateLimitConfig
	now       func() time.Time
	clients   map[string]*clientUsage
	lastPrune time.Time
}

type clientUsage struct {
	// admitted holds the admission times of the last hour, oldest first.
	admitted      []time.Time
	day           time.Time
	requestsToday int
	bytesToday    int64
	lastSeen      time.Time
}

// Usage is a snapshot of one client's consumption.
type Usage struct {
	LastMinute int   `json:"last_minute"`
	LastHour   int   `json:"last_hour"`
	Today      int   `json:"today"`
	BytesToday int64 `json:"bytes_today"`
}

// NewRateLimiter creates a limiter; zero limits are not enforced.
func NewRateLimiter(limits RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limits:  limits,
		now:     time.Now,
		clients: make(map[string]*clientUsage),
	}
}

// Allow admits a request of size bytes from client or returns a
// *RateLimitError or *QuotaExceededError. Rejected requests consume nothing.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.pruneLocked(now)

	u, ok := rl.clients[client]
	if !ok {
		u = &clientUsage{day: startOfDay(now)}
		rl.clients[client] = u
	}
	u.roll(now)

	if err := rl.checkWindow(u, now, "minute", time.Minute, rl.limits.RequestsPerMinute); err != nil {
		return err
	}
	if err := rl.checkWindow(u, now, "hour", time.Hour, rl.limits.RequestsPerHour); err != nil {
		return err
	}

	resets := u.day.AddDate(0, 0, 1)
	if limit := rl.limits.MaxRequestsPerDay; limit > 0 && u.requestsToday >= limit {
		return &QuotaExceededError{Resource: "requests", Limit: int64(limit), Used: int64(u.requestsToday), Resets: resets}
	}
	if limit := rl.limits.MaxDataPerDay; limit > 0 && u.bytesToday+size > limit {
		return &QuotaExceededError{Resource: "data", Limit: limit, Used: u.bytesToday, Resets: resets}
	}

	u.admitted = append(u.admitted, now)
	u.requestsToday++
	u.bytesToday += size
	u.lastSeen = now
	return nil
}

func (rl *RateLimiter) checkWindow(u *clientUsage, now time.Time, name string, window time.Duration, limit int) error {
	if limit <= 0 {
		return nil
	}
	inWindow := u.countSince(now.Add(-window))
	if inWindow < limit {
		return nil
	}
	// The request that frees a slot is the limit-th newest one.
	oldest := u.admitted[len(u.admitted)-limit]
	return &RateLimitError{Window: name, Limit: limit, RetryAfter: oldest.Add(window).Sub(now)}
}

// roll starts a new quota day and forgets admissions older than an hour.
func (u *clientUsage) roll(now time.Time) {
	if today := startOfDay(now); !today.Equal(u.day) {
		u.day = today
		u.requestsToday = 0
		u.bytesToday = 0
	}
	cutoff := now.Add(-time.Hour)
	drop := 0
	for drop < len(u.admitted) && !u.admitted[drop].After(cutoff) {
		drop++
	}
	u.admitted = u.admitted[drop:]
}

func (u *clientUsage) countSince(t time.Time) int {
	n := 0
	for i := len(u.admitted) - 1; i >= 0 && u.admitted[i].After(t); i-- {
		n++
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// pruneLocked drops clients idle for a day, at most once per hour.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastPrune) < time.Hour {
		return
	}
	rl.lastPrune = now
	for id, u := range rl.clients {
		if now.Sub(u.lastSeen) >= 24*time.Hour {
			delete(rl.clients, id)
		}
	}
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Usage returns the current consumption of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	now := rl.now()
	u.roll(now)
	return Usage{
		LastMinute: u.countSince(now.Add(-time.Minute)),
		LastHour:   len(u.admitted),
		Today:      u.requestsToday,
		BytesToday: u.bytesToday,
	}
}

// RateLimitError reports a full request window.
type RateLimitError struct {
	Window     string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s, retry in %s", e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError reports an exhausted daily quota.
type QuotaExceededError struct {
	Resource string // "requests" or "data"
	Limit    int64
	Used     int64
	Resets   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s quota exhausted (%d of %d used), resets at %s",
		e.Resource, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
