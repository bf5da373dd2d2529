// Package health exposes liveness and readiness probes for the HTTP server.
//
// Checks are registered before Start and executed together by one background
// goroutine on a fixed interval. Probe endpoints never run checks inline;
// they report the last recorded result, so a slow dependency cannot stall
// /livez or /readyz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type checkKind int

const (
	kindLiveness checkKind = iota
	kindReadiness
)

type check struct {
	name    string
	kind    checkKind
	timeout time.Duration
	fn      CheckFunc
}

// Health runs registered checks and serves probe endpoints.
type Health struct {
	ready atomic.Bool

	mu      sync.RWMutex
	checks  []*check
	results map[string]error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a Health with no checks registered. The service reports
// not-ready until SetReady(true) is called.
func New() *Health {
	return &Health{results: make(map[string]error)}
}

// AddLivenessCheck registers a check that gates /livez. Use it for
// process-local signals such as goroutine counts.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, kind: kindLiveness, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check that gates /readyz. Use it for
// dependencies the service needs to serve traffic, such as the database.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.add(&check{name: name, kind: kindReadiness, timeout: timeout, fn: fn})
}

func (h *Health) add(c *check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Start launches the background runner. All checks are executed once
// immediately, then again every interval until ctx is cancelled or Stop is
// called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)

		h.runAll(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.runAll(ctx)
			}
		}
	}()
}

// runAll executes every registered check and records the results.
func (h *Health) runAll(ctx context.Context) {
	h.mu.RLock()
	checks := make([]*check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		results[c.name] = c.fn(checkCtx)
		cancel()
	}

	h.mu.Lock()
	for name, err := range results {
		h.results[name] = err
	}
	h.mu.Unlock()
}

// Stop cancels the background runner and waits for it to exit. Safe to call
// more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetReady flips the manual readiness gate. Call with true once startup
// completes and with false at the beginning of graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness check
// last passed.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(kindReadiness)) == 0
}

// failures returns name -> message for checks of the given kind whose last
// recorded run returned an error.
func (h *Health) failures(kind checkKind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, c := range h.checks {
		if c.kind != kind {
			continue
		}
		if err, ok := h.results[c.name]; ok && err != nil {
			out[c.name] = err.Error()
		}
	}
	return out
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 when every liveness check last passed,
// 503 with the failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, h.failures(kindLiveness))
}

// ReadyEndpoint serves /readyz: 200 when the service is marked ready and
// every readiness check last passed, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(kindReadiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeProbe(w, failures)
}

func writeProbe(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeResponse{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
