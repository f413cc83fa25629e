package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures a token bucket per host.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// HostLimiter spaces requests to the same host with a fixed delay and an
// optional token bucket. A nil *HostLimiter never blocks.
type HostLimiter struct {
	delay       time.Duration
	rate        RateLimit
	rateEnabled bool

	mu       sync.Mutex
	next     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// NewHostLimiter returns nil when neither a delay nor a rate is configured.
func NewHostLimiter(delay time.Duration, rl RateLimit) *HostLimiter {
	rateEnabled := rl.Requests > 0 && rl.Window > 0
	if delay <= 0 && !rateEnabled {
		return nil
	}
	return &HostLimiter{
		delay:       delay,
		rate:        rl,
		rateEnabled: rateEnabled,
		next:        make(map[string]time.Time),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host may start.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter

	h.mu.Lock()
	if h.delay > 0 {
		// Reserve a slot so concurrent callers queue up behind each other.
		now := time.Now()
		slot := now
		if next, ok := h.next[host]; ok && next.After(now) {
			slot = next
		}
		sleep = slot.Sub(now)
		h.next[host] = slot.Add(h.delay)
	}
	if h.rateEnabled {
		limiter = h.limiterLocked(host)
	}
	h.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		return limiter.Wait(ctx)
	}
	return nil
}

func (h *HostLimiter) limiterLocked(host string) *rate.Limiter {
	if limiter, ok := h.limiters[host]; ok {
		return limiter
	}
	interval := h.rate.Window / time.Duration(h.rate.Requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), h.rate.Requests)
	h.limiters[host] = limiter
	return limiter
}
