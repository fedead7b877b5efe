package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterBurst is the short-burst allowance on top of the sustained
	// per-minute rate.
	limiterBurst = 20

	// limiterIdleTTL is how long an idle client's limiter is kept before
	// the sweep removes it.
	limiterIdleTTL = 10 * time.Minute

	// limiterSweepInterval is how often idle limiters are swept.
	limiterSweepInterval = time.Minute
)

// ipLimiter throttles HTTP traffic per client IP. This is transport
// back-pressure, separate from the credential-failure tracking inside
// the auth manager: it applies to all requests regardless of outcome.
type ipLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	limit      rate.Limit
}

// newIPLimiter creates a limiter allowing requestsPerMinute sustained
// per client. Zero or negative disables throttling.
func newIPLimiter(requestsPerMinute int) *ipLimiter {
	var limit rate.Limit
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &ipLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		limit:      limit,
	}
}

// allow reports whether the client may proceed, creating a limiter on
// first sight.
func (l *ipLimiter) allow(ip string) bool {
	if l.limit == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, limiterBurst)
		l.limiters[ip] = limiter
	}
	l.lastAccess[ip] = time.Now()

	return limiter.Allow()
}

// sweep removes limiters for clients idle longer than limiterIdleTTL.
func (l *ipLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTTL)
	for ip, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, ip)
			delete(l.lastAccess, ip)
		}
	}
}

// rateLimitMiddleware rejects clients exceeding the per-IP request rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, ErrCodeTooMany, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
