// Package health provides liveness and readiness probes for the nudge service.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health of a dependency.
type Status string

const (
	StatusOK   Status = "ok"
	StatusDown Status = "down"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) Status

// Checker runs named health checks for the service's collaborators
// (GitHub, Slack) and reports readiness.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	logger zerolog.Logger
}

// NewChecker creates a health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all checks concurrently, each with a 5s timeout.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			s := f(checkCtx)
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	return results
}

// IsReady returns true when no check reports down.
func (c *Checker) IsReady(ctx context.Context) bool {
	for _, s := range c.RunAll(ctx) {
		if s == StatusDown {
			return false
		}
	}
	return true
}

// LivenessHandler returns an HTTP handler for the liveness probe.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadinessHandler returns an HTTP handler for the readiness probe.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		results := c.RunAll(r.Context())

		status := "ready"
		code := http.StatusOK
		for _, s := range results {
			if s == StatusDown {
				status = "not_ready"
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": results,
		})
	}
}
