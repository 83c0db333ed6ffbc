package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// tenantLimiter keeps one token bucket per tenant.
type tenantLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// newTenantLimiter returns a limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting.
func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	l := &tenantLimiter{limit: rate.Inf, burst: burst, buckets: map[string]*rate.Limiter{}}
	if rps > 0 {
		l.limit = rate.Limit(rps)
	}
	if l.burst <= 0 {
		l.burst = 1
	}
	return l
}

func (l *tenantLimiter) Allow(tenant string) bool {
	l.mu.Lock()
	b, ok := l.buckets[tenant]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[tenant] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
