// Package health provides liveness checks for the service's backing stores.
package health

import (
	"context"
	"sync"
	"time"
)

// Status of a single dependency.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// CheckFunc probes one dependency. A nil error means the dependency is up.
type CheckFunc func(ctx context.Context) error

// Result of one probe.
type Result struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Registry holds named dependency checks.
type Registry struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewRegistry creates an empty registry. Each probe is bounded by timeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Registry{checks: map[string]CheckFunc{}, timeout: timeout}
}

// Register adds a named check, replacing any previous one with the same name.
func (r *Registry) Register(name string, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Check probes every dependency and reports per-dependency results.
// healthy is false if any probe fails.
func (r *Registry) Check(ctx context.Context) (map[string]Result, bool) {
	r.mu.RLock()
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	healthy := true
	for name, check := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		start := time.Now()
		err := check(probeCtx)
		cancel()

		res := Result{Status: StatusUp, Duration: time.Since(start)}
		if err != nil {
			res.Status = StatusDown
			res.Error = err.Error()
			healthy = false
		}
		results[name] = res
	}
	return results, healthy
}
