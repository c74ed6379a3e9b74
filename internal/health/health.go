// Package health aggregates per-dependency checks behind liveness and
// readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values for a component or the whole service.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
	Critical  bool          `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) CheckResult
}

// Report is the aggregated health document served over HTTP.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	logger   *zap.Logger
}

// NewManager creates a health manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// CheckAll runs every checker with a per-check timeout. The overall status
// is unhealthy when any critical dependency fails, degraded when a
// non-critical one does.
func (m *Manager) CheckAll(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(checkers)),
	}
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res := c.Check(cctx)
		cancel()
		res.LatencyMS = res.Duration.Milliseconds()
		report.Checks[c.Name()] = res

		switch res.Status {
		case StatusUnhealthy:
			if c.Critical() {
				report.Status = StatusUnhealthy
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// RegisterRoutes mounts /health and /readiness on the mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", m.handleHealth)
	mux.HandleFunc("GET /readiness", m.handleReadiness)
}

// handleHealth is the liveness probe: the process is up, so it always
// answers 200 with the current report.
func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.writeReport(w, m.CheckAll(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 until every critical dependency is reachable.
func (m *Manager) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := m.CheckAll(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	m.writeReport(w, report, code)
}

func (m *Manager) writeReport(w http.ResponseWriter, report Report, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		m.logger.Warn("Failed to encode health report", zap.Error(err))
	}
}
