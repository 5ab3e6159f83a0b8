package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies a per-IP token bucket to one class of client
// endpoints. Idle buckets are dropped after an hour so the map does not
// grow without bound.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdleTTL = time.Hour

// NewRateLimiter builds a limiter allowing rpm requests per minute per
// IP with the given burst.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether a request from the given IP is within budget.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now

	// Opportunistic cleanup of idle buckets.
	if len(rl.buckets) > 1024 {
		cutoff := now.Add(-bucketIdleTTL)
		for key, other := range rl.buckets {
			if other.lastSeen.Before(cutoff) {
				delete(rl.buckets, key)
			}
		}
	}

	return b.limiter.Allow()
}

// Middleware wraps a handler with the per-IP limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			writeCode(w, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		// Use the first IP in the chain.
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Limiters groups the per-endpoint-class limiters for the client API.
type Limiters struct {
	Validate  *RateLimiter
	Heartbeat *RateLimiter
	Bind      *RateLimiter
}

// NewLimiters builds the three client-endpoint limiters.
func NewLimiters(validateRPM, heartbeatRPM, bindRPM, burst int) *Limiters {
	return &Limiters{
		Validate:  NewRateLimiter(validateRPM, burst),
		Heartbeat: NewRateLimiter(heartbeatRPM, burst),
		Bind:      NewRateLimiter(bindRPM, burst),
	}
}
