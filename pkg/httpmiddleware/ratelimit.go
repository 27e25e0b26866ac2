package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HeaderRegisterID identifies the till a request comes from.
const HeaderRegisterID = "X-Register-ID"

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max requests allowed per Window and key.
	Max    int
	Window time.Duration
	// KeyFunc picks the limiter key. Defaults to RegisterKey.
	KeyFunc func(*http.Request) string
}

// RegisterKey keys requests by the X-Register-ID header, falling back to
// the client address for callers that are not tills.
func RegisterKey(r *http.Request) string {
	if id := r.Header.Get(HeaderRegisterID); id != "" {
		return "register:" + id
	}
	return "ip:" + clientIP(r)
}

// window counts requests in the current and previous fixed windows. The
// previous count is weighted by how much of it the sliding window still
// covers.
type window struct {
	prev, curr float64
	start      time.Time
}

type limiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RegisterKey
	}
	return &limiter{cfg: cfg, windows: make(map[string]*window)}
}

// take records one request for key unless the limit is reached.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.windows[key]
	if win == nil {
		win = &window{start: now.Truncate(l.cfg.Window)}
		l.windows[key] = win
	}
	switch elapsed := now.Sub(win.start); {
	case elapsed >= 2*l.cfg.Window:
		win.prev, win.curr = 0, 0
		win.start = now.Truncate(l.cfg.Window)
	case elapsed >= l.cfg.Window:
		win.prev, win.curr = win.curr, 0
		win.start = win.start.Add(l.cfg.Window)
	}

	overlap := 1 - now.Sub(win.start).Seconds()/l.cfg.Window.Seconds()
	used := win.prev*math.Max(overlap, 0) + win.curr
	reset = win.start.Add(l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	win.curr++
	return max(int(float64(l.cfg.Max)-used-1), 0), reset, true
}

// evict drops keys idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, win := range l.windows {
		if now.Sub(win.start) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// RateLimit limits each key to cfg.Max requests per sliding window and
// answers 429 beyond it. Responses carry X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a background sweep of idle keys
// that stops with ctx.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, reset, ok := l.take(l.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if !ok {
			retry := max(time.Until(reset), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
