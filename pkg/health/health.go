// Package health serves liveness and readiness probes for the till API.
//
// Every check runs on its own ticker. A check flips to unhealthy after
// FailureThreshold consecutive failures and back after one success, so a
// single slow database round trip does not take the server out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil while the checked dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe selects the endpoint a check reports on.
type Probe int

const (
	// Liveness failures mean the process should be restarted.
	Liveness Probe = iota
	// Readiness failures mean the process should get no traffic.
	Readiness
)

// DefaultFailureThreshold is the number of consecutive failures that mark a
// check unhealthy.
const DefaultFailureThreshold = 3

type check struct {
	name      string
	timeout   time.Duration
	fn        CheckFunc
	threshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// fails is owned by the check's goroutine.
	fails int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)
	if err == nil {
		c.fails = 0
		c.healthy.Store(true)
		return
	}
	c.fails++
	if c.fails >= c.threshold {
		c.healthy.Store(false)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health holds the registered checks and the manual readiness flag.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	checks map[Probe][]*check
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{checks: make(map[Probe][]*check)}
}

// Register adds a check to probe. Checks start healthy.
func (h *Health) Register(probe Probe, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, timeout: timeout, fn: fn, threshold: DefaultFailureThreshold}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[probe] = append(h.checks[probe], c)
}

// AddLivenessCheck registers a liveness check.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Liveness, name, timeout, fn)
}

// AddReadinessCheck registers a readiness check.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Register(Readiness, name, timeout, fn)
}

// Start runs every check immediately and then every interval until Stop or
// ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := slices.Concat(h.checks[Liveness], h.checks[Readiness])
	h.mu.Unlock()

	for _, c := range all {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness flag, e.g. to drain before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the server is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(probe Probe) map[string]string {
	h.mu.RLock()
	checks := slices.Clone(h.checks[probe])
	h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			out[c.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus answers 200 {"status":"ok"} or 503 with the failing checks
// in name order.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, text := http.StatusOK, "ok"
	if len(failures) > 0 {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(text) })
		if len(failures) == 0 {
			return
		}
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		slices.Sort(names)
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
