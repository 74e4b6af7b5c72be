package healthprobe

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Checker tracks per-component readiness. Liveness only reports that the
// process is up; readiness requires every registered component (venue
// streams, storage) to have reported ready, so the instance is not routed
// traffic while a venue connection is still coming up.
type Checker struct {
	service   string
	startTime time.Time

	mu         sync.RWMutex
	components map[string]bool
}

// New creates a checker for the named service. Every listed component
// starts not-ready; a checker with no components is ready immediately.
func New(service string, components ...string) *Checker {
	c := &Checker{
		service:    service,
		startTime:  time.Now(),
		components: make(map[string]bool, len(components)),
	}
	for _, name := range components {
		c.components[name] = false
	}
	return c
}

// SetReady records one component's readiness. Unknown components are
// registered on first report.
func (c *Checker) SetReady(component string, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[component] = ready
}

func (c *Checker) snapshot() (map[string]bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	components := make(map[string]bool, len(c.components))
	allReady := true
	for name, ready := range c.components {
		components[name] = ready
		if !ready {
			allReady = false
		}
	}
	return components, allReady
}

type healthBody struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

type readyBody struct {
	Status     string          `json:"status"`
	Service    string          `json:"service"`
	Components map[string]bool `json:"components"`
}

// Health returns the liveness handler. Always 200 while the process runs.
func (c *Checker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, healthBody{
			Status:    "ok",
			Service:   c.service,
			Uptime:    time.Since(c.startTime).String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// Ready returns the readiness handler: 200 once every component has
// reported ready, 503 otherwise, with the per-component state in the body.
func (c *Checker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components, allReady := c.snapshot()

		status := "ready"
		code := http.StatusOK
		if !allReady {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		writeBody(w, code, readyBody{
			Status:     status,
			Service:    c.service,
			Components: components,
		})
	}
}

func writeBody(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
