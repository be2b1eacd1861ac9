package httpmiddleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// Max requests per Window for one key. Zero disables limiting.
	Max    int
	Window time.Duration
	// KeyFunc identifies the caller. Returning "" falls back to ClientIP.
	KeyFunc func(*http.Request) string
}

// window is a sliding-window counter: the previous window's count is
// weighted by how much of it still overlaps the sliding window.
type window struct {
	start time.Time
	curr  int
	prev  int
}

// Limiter is a keyed sliding-window rate limiter.
type Limiter struct {
	max    int
	width  time.Duration
	now    func() time.Time
	mu     sync.Mutex
	counts map[string]*window
}

// NewLimiter allows limit events per width for each key.
func NewLimiter(limit int, width time.Duration) *Limiter {
	return &Limiter{
		max:    limit,
		width:  width,
		now:    time.Now,
		counts: make(map[string]*window),
	}
}

// Allow records an event for key. It reports whether the event is within
// the limit, how many remain and when the current window ends.
func (l *Limiter) Allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.width)
	w, found := l.counts[key]
	switch {
	case !found:
		w = &window{start: start}
		l.counts[key] = w
	case start.Sub(w.start) >= 2*l.width:
		w.start, w.prev, w.curr = start, 0, 0
	case start.After(w.start):
		w.start, w.prev, w.curr = start, w.curr, 0
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.width)
	used := int(float64(w.prev)*overlap) + w.curr
	reset = w.start.Add(l.width)
	if used >= l.max {
		return false, 0, reset
	}
	w.curr++
	return true, l.max - used - 1, reset
}

// Sweep drops keys idle for two windows.
func (l *Limiter) Sweep() {
	cutoff := l.now().Add(-2 * l.width)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.counts {
		if w.start.Before(cutoff) {
			delete(l.counts, k)
		}
	}
}

// Run sweeps idle keys until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.width)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep()
		}
	}
}

// RateLimit rejects callers exceeding cfg with 429. It returns the limiter
// so the caller can run its sweeper.
func RateLimit(cfg RateLimitConfig) (Middleware, *Limiter) {
	l := NewLimiter(cfg.Max, cfg.Window)
	keyFunc := cfg.KeyFunc
	return func(next http.Handler) http.Handler {
		if cfg.Max <= 0 || cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if keyFunc != nil {
				key = keyFunc(r)
			}
			if key == "" {
				key = "ip:" + ClientIP(r)
			}

			ok, remaining, reset := l.Allow(key)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := int(time.Until(reset).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(max(retry, 1)))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, l
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
