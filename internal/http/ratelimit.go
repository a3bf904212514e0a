package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

type failure struct {
	count int
	last  time.Time
}

// RateLimiter tracks failed auth attempts and blocks IPs with an
// exponential backoff.
type RateLimiter struct {
	failures map[string]failure
	mu       sync.RWMutex
	base     time.Duration // block after the first failure
	max      time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(base, max time.Duration) *RateLimiter {
	return &RateLimiter{
		failures: make(map[string]failure),
		base:     base,
		max:      max,
		now:      time.Now,
	}
}

// RecordFailure records a failed auth attempt for an IP
func (r *RateLimiter) RecordFailure(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.failures[ip]
	f.count++
	f.last = r.now()
	r.failures[ip] = f
}

// ClearFailure clears the failure record for an IP (on successful auth)
func (r *RateLimiter) ClearFailure(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, ip)
}

// delay is base doubled per consecutive failure, capped at max
func (r *RateLimiter) delay(count int) time.Duration {
	d := r.base
	for i := 1; i < count && d < r.max; i++ {
		d *= 2
	}
	if d > r.max {
		d = r.max
	}
	return d
}

// RetryAfter returns how long the IP stays blocked, 0 if it is not
func (r *RateLimiter) RetryAfter(ip string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.failures[ip]
	if !exists {
		return 0
	}
	remaining := r.delay(f.count) - r.now().Sub(f.last)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// IsLimited returns true if the IP is currently rate limited
func (r *RateLimiter) IsLimited(ip string) bool {
	return r.RetryAfter(ip) > 0
}

// rateLimit middleware rejects IPs in backoff
func (s *Server) rateLimit(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.Method == http.MethodOptions {
			handler(w, r)
			return
		}
		clientIP := s.clientIP(r)
		if wait := s.rateLimiter.RetryAfter(clientIP); wait > 0 {
			L_warn("http: rate limited", "ip", clientIP, "retryAfter", wait)
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "too many failed attempts, try again later")
			return
		}
		handler(w, r)
	}
}
