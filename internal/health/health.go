// Package health provides the HTTP liveness and readiness probes for the
// streaming server.
//
//   - /healthz — liveness; a process that can serve HTTP answers 200.
//   - /readyz  — readiness; 200 only when every registered [Checker] passes.
//
// The readiness response is a JSON object with a top-level "status" field
// ("ok" or "fail") and a "checks" map reporting each checker's outcome and
// probe latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and an error describing the failure otherwise. It must respect
// context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// checkResult is one entry of the "checks" map.
type checkResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// response is the JSON body for both probes.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Safe for concurrent use; the checker
// list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] over the given checkers. Probes run concurrently
// on each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every checker concurrently, each under its own timeout derived
// from the request context, and answers 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	checks := make(map[string]checkResult, len(h.checkers))
	allOK := true

	eg := errgroup.Group{}
	for _, c := range h.checkers {
		eg.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()

			started := time.Now()
			err := c.Check(ctx)
			latency := time.Since(started).Round(time.Microsecond).String()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = checkResult{Status: "fail", Error: err.Error(), Latency: latency}
				allOK = false
			} else {
				checks[c.Name] = checkResult{Status: "ok", Latency: latency}
			}
			return nil
		})
	}
	_ = eg.Wait()

	res := response{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
