package worker

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces job launches per store target so a burst of workers does
// not open every connection to the same database at once
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new launch limiter. A non-positive rate disables pacing.
func NewLimiter(launchesPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Limit(launchesPerSecond)
	if launchesPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait waits for launch clearance against the given store target
func (l *Limiter) Wait(ctx context.Context, target string) error {
	return l.getLimiter(TargetKey(target)).Wait(ctx)
}

// Allow checks if a launch is allowed without waiting
func (l *Limiter) Allow(target string) bool {
	return l.getLimiter(TargetKey(target)).Allow()
}

// getLimiter returns the rate limiter for a target key
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[key]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[key] = limiter

	return limiter
}

// TargetKey reduces a connection string to the host it points at. Key/value
// connection strings and unparsable input are used verbatim.
func TargetKey(target string) string {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return target
	}
	return parsed.Host
}
