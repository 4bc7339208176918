package providers

import (
	"sort"
	"sync"
	"time"
)

// WindowLimiter admits at most limit events within any trailing window.
// Unlike a token bucket it never bursts past the limit after an idle period.
type WindowLimiter struct {
	mu sync.Mutex

	// Configuration
	limit  int
	window time.Duration
	now    func() time.Time

	// Timestamps of admitted events, oldest first
	stamps []time.Time

	// Statistics
	totalConsumed int64
	last429Time   time.Time
}

// WindowLimiterStatus reports current limiter state.
type WindowLimiterStatus struct {
	InWindow      int           `json:"in_window"`
	Limit         int           `json:"limit"`
	Window        time.Duration `json:"window"`
	TimeUntilSlot time.Duration `json:"time_until_slot"`
	TotalConsumed int64         `json:"total_consumed"`
	Last429Time   time.Time     `json:"last_429_time,omitempty"`
}

// NewWindowLimiter creates a limiter. A nil now uses time.Now.
func NewWindowLimiter(limit int, window time.Duration, now func() time.Time) *WindowLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &WindowLimiter{
		limit:  limit,
		window: window,
		now:    now,
	}
}

// Available purges expired events and reports whether another fits.
func (r *WindowLimiter) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purge()
	return len(r.stamps) < r.limit
}

// TryAcquire records an event if one fits. Returns false when the window is full.
func (r *WindowLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purge()
	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, r.now())
	r.totalConsumed++
	return true
}

// Record429 should be called when a 429 error is received.
// With a retryAfter the window is treated as full until it elapses.
func (r *WindowLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.last429Time = now
	if retryAfter <= 0 {
		return
	}
	// Backdate so the synthetic events expire after retryAfter.
	stamp := now.Add(retryAfter - r.window)
	r.purge()
	for len(r.stamps) < r.limit {
		r.stamps = append(r.stamps, stamp)
	}
	sort.Slice(r.stamps, func(i, j int) bool { return r.stamps[i].Before(r.stamps[j]) })
}

// Status returns current limiter status.
func (r *WindowLimiter) Status() WindowLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.purge()

	var until time.Duration
	if len(r.stamps) >= r.limit && len(r.stamps) > 0 {
		until = r.stamps[0].Add(r.window).Sub(r.now())
		if until < 0 {
			until = 0
		}
	}

	return WindowLimiterStatus{
		InWindow:      len(r.stamps),
		Limit:         r.limit,
		Window:        r.window,
		TimeUntilSlot: until,
		TotalConsumed: r.totalConsumed,
		Last429Time:   r.last429Time,
	}
}

// Limit returns the configured maximum per window.
func (r *WindowLimiter) Limit() int {
	return r.limit
}

// purge drops events older than the window. Must be called with lock held.
func (r *WindowLimiter) purge() {
	now := r.now()
	keep := 0
	for keep < len(r.stamps) && now.Sub(r.stamps[keep]) >= r.window {
		keep++
	}
	if keep > 0 {
		r.stamps = append(r.stamps[:0], r.stamps[keep:]...)
	}
}
