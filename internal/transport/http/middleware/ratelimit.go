package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket rate limiter with automatic
// stale-entry cleanup. Applied router-wide as a coarse throttle.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP limiter: r requests/second, burst up to burst requests.
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		burst:    burst,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

// cleanup removes stale entries every 5 minutes.
func (rl *RateLimiter) cleanup() {
	for {
		time.Sleep(5 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.limiters {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit is the middleware handler that enforces the rate limit per remote IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(realIP(r)).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type fixedWindow struct {
	count   int
	resetAt time.Time
}

type rateLimitMetrics interface {
	RecordRateLimited(endpoint string)
}

// FixedWindowLimiter counts requests per client IP in fixed windows.
// Used on credential endpoints where a hard per-window cap is wanted:
// exactly limit requests are admitted per window, the rest get 429
// until the window rolls over. Counts are process-local and reset on
// restart.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	limit   int
	window  time.Duration
	metrics rateLimitMetrics
	now     func() time.Time
}

func NewFixedWindowLimiter(limit int, window time.Duration, metrics rateLimitMetrics) *FixedWindowLimiter {
	fl := &FixedWindowLimiter{
		windows: make(map[string]*fixedWindow),
		limit:   limit,
		window:  window,
		metrics: metrics,
		now:     time.Now,
	}
	go fl.cleanup()
	return fl
}

// WithClock overrides the limiter's clock. Test hook.
func (fl *FixedWindowLimiter) WithClock(now func() time.Time) *FixedWindowLimiter {
	fl.now = now
	return fl
}

func (fl *FixedWindowLimiter) allow(ip string) bool {
	now := fl.now()
	fl.mu.Lock()
	defer fl.mu.Unlock()
	w, ok := fl.windows[ip]
	if !ok || now.After(w.resetAt) {
		fl.windows[ip] = &fixedWindow{count: 1, resetAt: now.Add(fl.window)}
		return true
	}
	if w.count >= fl.limit {
		return false
	}
	w.count++
	return true
}

func (fl *FixedWindowLimiter) cleanup() {
	for {
		time.Sleep(5 * time.Minute)
		fl.mu.Lock()
		now := fl.now()
		for ip, w := range fl.windows {
			if now.After(w.resetAt) {
				delete(fl.windows, ip)
			}
		}
		fl.mu.Unlock()
	}
}

// Limit enforces the per-window cap for the named endpoint.
func (fl *FixedWindowLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !fl.allow(realIP(r)) {
				fl.metrics.RecordRateLimited(endpoint)
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP resolves the client address, preferring proxy headers when
// present.
func realIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
