package oracle

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket pacing oracle requests. One limiter guards
// one client; concurrent chapter workers share it.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastUpdate        time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute requests.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		tokensNeeded := 1.0 - r.tokens
		refillRate := float64(r.requestsPerMinute) / 60.0
		waitTime := time.Duration(tokensNeeded / refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// Record429 drains the bucket after a rate-limit response so the next wait
// spans at least the provider's cool-off.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429Time = time.Now()
	r.tokens = 0
	if retryAfter > 0 {
		// Push lastUpdate forward so refill stays empty until retryAfter.
		r.lastUpdate = time.Now().Add(retryAfter)
	}
}

// SetRPM changes the request budget in place. Tokens above the new capacity
// are forfeited; waiters pick up the new refill rate on their next pass.
func (r *RateLimiter) SetRPM(requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	r.requestsPerMinute = requestsPerMinute
	if max := float64(requestsPerMinute); r.tokens > max {
		r.tokens = max
	}
}

// RPM returns the current request budget.
func (r *RateLimiter) RPM() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestsPerMinute
}

func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed <= 0 {
		return
	}
	r.tokens += elapsed * float64(r.requestsPerMinute) / 60.0
	if max := float64(r.requestsPerMinute); r.tokens > max {
		r.tokens = max
	}
	r.lastUpdate = now
}
