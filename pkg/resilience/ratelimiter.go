package resilience

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterOpts configures a KeyedLimiter.
type LimiterOpts struct {
	// Rate is the number of events allowed per second per key.
	Rate float64
	// Burst is the bucket capacity per key.
	Burst int
	// IdleTTL drops a key's bucket after this long without use.
	IdleTTL time.Duration
}

// KeyedLimiter keeps one token bucket per key, such as a client address.
type KeyedLimiter struct {
	opts LimiterOpts

	mu      sync.Mutex
	buckets map[string]*bucket
	sweep   time.Time
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewKeyedLimiter creates a limiter. A non-positive Rate disables limiting.
func NewKeyedLimiter(opts LimiterOpts) *KeyedLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{opts: opts, buckets: map[string]*bucket{}, now: time.Now}
}

// Allow reports whether an event for key may happen now.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.opts.Rate <= 0 {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.opts.Rate), l.opts.Burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// evict drops idle buckets at most once per IdleTTL. Must hold mu.
func (l *KeyedLimiter) evict(now time.Time) {
	if now.Sub(l.sweep) < l.opts.IdleTTL {
		return
	}
	l.sweep = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.opts.IdleTTL {
			delete(l.buckets, k)
		}
	}
}
