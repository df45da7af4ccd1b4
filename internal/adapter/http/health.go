package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Health serves /health: uptime, open realtime connections and the state
// of each registered dependency. Any failing dependency turns the
// response into 503 so load balancers stop routing here.
type Health struct {
	started     time.Time
	version     string
	connections func() int

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealth creates a health endpoint. connections may be nil.
func NewHealth(version string, connections func() int) *Health {
	return &Health{
		started:     time.Now(),
		version:     version,
		connections: connections,
		checks:      make(map[string]HealthCheck),
	}
}

// Add registers a named dependency check.
func (h *Health) Add(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version,omitempty"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Connections   int               `json:"connections"`
	Dependencies  map[string]string `json:"dependencies"`
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	uptime := time.Since(h.started)
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		Dependencies:  make(map[string]string, len(names)),
	}
	if h.connections != nil {
		resp.Connections = h.connections()
	}
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()
		if err := check(ctx); err != nil {
			resp.Dependencies[name] = "down: " + err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
