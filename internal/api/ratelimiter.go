package api

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/eugenenazirov/digitsum/internal/session"
)

type rateLimiter interface {
	Allow(key string) bool
}

// sessionLimiter hands every session its own token bucket. Buckets are kept
// for at most capacity keys; the least recently created one is dropped first.
type sessionLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	capacity int
	buckets  map[string]*rate.Limiter
	order    []string
}

func newSessionLimiter(ratePerSecond float64, burst, capacity int) *sessionLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if capacity <= 0 {
		capacity = session.DefaultCapacity
	}

	return &sessionLimiter{
		limit:    rate.Limit(ratePerSecond),
		burst:    burst,
		capacity: capacity,
		buckets:  make(map[string]*rate.Limiter),
	}
}

func (l *sessionLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.bucket(key).Allow()
}

func (l *sessionLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.buckets, oldest)
	}

	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets[key] = b
	l.order = append(l.order, key)
	return b
}

func (l *sessionLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitKey picks the bucket for r. Callers without X-Session-ID would get
// a fresh session per request, so they share a bucket per client address.
func rateLimitKey(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(sessionIDHeader)); id != "" {
		return "session:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(rateLimitKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded for this session, please retry shortly")
	})
}
