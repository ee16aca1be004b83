package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long a caller's bucket is kept after its last request.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// userLimiter keeps one token bucket per caller key. Buckets idle for longer
// than idle are swept on access, at most once per idle period.
type userLimiter struct {
	rps   float64
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	lastSweep time.Time
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &userLimiter{
		rps:       rps,
		burst:     burst,
		idle:      limiterIdle,
		now:       time.Now,
		limiters:  make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

// get returns the limiter for key, creating it on first use.
// Returns nil when limiting is disabled.
func (l *userLimiter) get(key string) *rate.Limiter {
	if l == nil || l.rps <= 0 {
		return nil
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	if e, ok := l.limiters[key]; ok {
		e.seen = now
		return e.lim
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[key] = &limiterEntry{lim: lim, seen: now}
	return lim
}

// sweep drops buckets not used within the idle period. Caller holds mu.
func (l *userLimiter) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.seen) >= l.idle {
			delete(l.limiters, k)
		}
	}
	l.lastSweep = now
}

// middleware rejects requests over the caller's rate with 429.
func (l *userLimiter) middleware(key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := l.get(key(r))
			if lim != nil && !lim.Allow() {
				retry := time.Duration(float64(time.Second) / l.rps)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey keys anonymous requests by remote address (set by RealIP).
func clientKey(r *http.Request) string { return "addr:" + r.RemoteAddr }

// userKey keys authenticated requests by user id.
func userKey(r *http.Request) string { return "user:" + userFrom(r.Context()) }
