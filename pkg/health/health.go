// Package health runs registered dependency checks concurrently and serves
// liveness and readiness probes. The index root is always checked; Redis and
// PostgreSQL only when they are configured.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Checker holds named checks and remembers each one's last status so only
// transitions are logged.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
	last   map[string]Status
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		last:   make(map[string]Status),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

type namedResult struct {
	name   string
	result ComponentHealth
}

// Run executes every check concurrently and reports the worst status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	results := make(chan namedResult, len(c.checks))
	for name, check := range c.checks {
		go func() {
			start := time.Now()
			r := check(ctx)
			r.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
			results <- namedResult{name, r}
		}()
	}
	n := len(c.checks)
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, n),
		Timestamp:  time.Now().UTC(),
	}
	for range n {
		nr := <-results
		report.Components[nr.name] = nr.result
		report.Status = worse(report.Status, nr.result.Status)
	}
	c.logTransitions(report)
	return report
}

func (c *Checker) logTransitions(report Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, comp := range report.Components {
		prev, seen := c.last[name]
		c.last[name] = comp.Status
		if (seen && prev == comp.Status) || (!seen && comp.Status == StatusUp) {
			continue
		}
		if comp.Status == StatusUp {
			c.logger.Info("health check recovered", "check", name, "was", prev)
			continue
		}
		c.logger.Warn("health check failing", "check", name, "status", comp.Status, "message", comp.Message)
	}
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusDown:
			return 2
		case StatusDegraded:
			return 1
		}
		return 0
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 when any check is down. Degraded components do
// not fail readiness.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
