package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// readinessTimeout bounds a full readiness round
const readinessTimeout = 5 * time.Second

// Pinger is implemented by storage adapters
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditMonitor reports how many audit records were lost
type AuditMonitor interface {
	Failures() uint64
}

// probe is one dependency check. A failing critical probe makes the service
// unhealthy, any other failure only degrades it.
type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// HealthChecker answers liveness and readiness probes
type HealthChecker struct {
	probes  []probe
	version string
	now     func() time.Time
}

// NewHealthChecker checks storage as a critical dependency. redis and audit
// are optional and only ever degrade readiness.
func NewHealthChecker(storage Pinger, redisClient *redis.Client, audit AuditMonitor, version string) *HealthChecker {
	h := &HealthChecker{version: version, now: time.Now}
	if storage != nil {
		h.probes = append(h.probes, probe{name: "storage", critical: true, check: storage.Ping})
	}
	if redisClient != nil {
		h.probes = append(h.probes, probe{name: "redis", check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	if audit != nil {
		h.probes = append(h.probes, probe{name: "audit", check: func(context.Context) error {
			if lost := audit.Failures(); lost > 0 {
				return fmt.Errorf("%d audit records lost", lost)
			}
			return nil
		}})
	}
	return h
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of a single probe
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check runs every probe concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	report := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    h.now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.probes)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range h.probes {
		p := p
		g.Go(func() error {
			start := h.now()
			err := p.check(gctx)
			dep := DependencyStatus{Status: StatusHealthy, LatencyMS: h.now().Sub(start).Milliseconds()}
			if err != nil {
				dep.Status = StatusDegraded
				if p.critical {
					dep.Status = StatusUnhealthy
				}
				dep.Message = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Dependencies[p.name] = dep
			report.Status = worst(report.Status, dep.Status)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func worst(current, next string) string {
	switch {
	case current == StatusUnhealthy || next == StatusUnhealthy:
		return StatusUnhealthy
	case current == StatusDegraded || next == StatusDegraded:
		return StatusDegraded
	}
	return StatusHealthy
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Liveness answers 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: h.now().UTC(), Version: h.version})
}

// Readiness answers 503 only when a critical dependency is down
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	report := h.Check(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, report)
}
