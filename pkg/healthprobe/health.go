package healthprobe

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports the health of one component. A nil error means
// healthy.
type CheckFunc func() error

// HealthChecker serves liveness and readiness probes. Liveness only
// proves the process is running; readiness additionally requires
// startup to have finished and every registered component check to
// pass.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
}

// SetReady marks startup as finished (or the app as draining).
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterCheck adds a named component check to the readiness probe.
func (h *HealthChecker) RegisterCheck(name string, fn CheckFunc) {
	h.mu.Lock()
	h.checks[name] = fn
	h.mu.Unlock()
}

type probeResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Failing map[string]string `json:"failing,omitempty"`
}

// Health returns the liveness handler. It always answers 200 while the
// process runs.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns the readiness handler. 503 until SetReady(true) and
// while any registered check fails.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := probeResponse{Uptime: time.Since(h.startTime).String()}

		if !h.ready.Load() {
			resp.Status = "not_ready"
			writeProbe(w, http.StatusServiceUnavailable, resp)
			return
		}

		if failing := h.runChecks(); len(failing) > 0 {
			resp.Status = "not_ready"
			resp.Failing = failing
			writeProbe(w, http.StatusServiceUnavailable, resp)
			return
		}

		resp.Status = "ready"
		writeProbe(w, http.StatusOK, resp)
	}
}

func (h *HealthChecker) runChecks() map[string]string {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failing map[string]string
	for _, name := range names {
		if err := h.checks[name](); err != nil {
			if failing == nil {
				failing = make(map[string]string)
			}
			failing[name] = err.Error()
		}
	}
	h.mu.RUnlock()

	return failing
}

func writeProbe(w http.ResponseWriter, code int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
