package daemon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/GPTx-global/gora/oracle/log"
)

// HealthCheck is one named liveness check.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthCheck.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type HealthStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
}

// HealthChecker runs its checks on demand and keeps the latest outcome.
type HealthChecker struct {
	mtx    sync.RWMutex
	checks map[string]HealthCheck
	status map[string]HealthStatus
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
		status: make(map[string]HealthStatus),
	}
}

func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mtx.Lock()
	defer hc.mtx.Unlock()
	hc.checks[check.Name()] = check
}

// Run executes every check and returns the statuses sorted by name.
func (hc *HealthChecker) Run(ctx context.Context) []HealthStatus {
	hc.mtx.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mtx.RUnlock()

	out := make([]HealthStatus, 0, len(checks))
	for _, c := range checks {
		st := HealthStatus{Name: c.Name(), Healthy: true, LastCheck: time.Now()}
		if err := c.Check(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			log.Errorf("health check %s failed: %v", c.Name(), err)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	hc.mtx.Lock()
	for _, st := range out {
		hc.status[st.Name] = st
	}
	hc.mtx.Unlock()

	return out
}

// IsHealthy reports the outcome of the last run.
func (hc *HealthChecker) IsHealthy() bool {
	hc.mtx.RLock()
	defer hc.mtx.RUnlock()
	for _, st := range hc.status {
		if !st.Healthy {
			return false
		}
	}
	return true
}
