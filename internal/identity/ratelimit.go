package identity

import (
	"sync"

	"golang.org/x/time/rate"
)

// signInLimiter throttles sign-in attempts per email so credential stuffing
// cannot hammer the identity provider through the console.
type signInLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newSignInLimiter allows perMinute attempts per key with the given burst.
func newSignInLimiter(perMinute float64, burst int) *signInLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &signInLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

func (l *signInLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Reset drops all per-key limiters. Called by the janitor to bound memory.
func (l *signInLimiter) Reset() {
	l.mu.Lock()
	l.limiters = make(map[string]*rate.Limiter)
	l.mu.Unlock()
}
