package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/stake-wheel-go/internal/wheel"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// worse returns the more severe of two statuses.
func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func (s *Server) runChecks(ctx context.Context) (map[string]HealthCheck, HealthStatus) {
	checks := map[string]HealthCheck{
		"wheel":    s.checkWheelHealth(),
		"database": s.checkDatabaseHealth(ctx),
		"scanner":  s.checkScannerHealth(),
		"sessions": s.checkSessionsHealth(),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		overall = worse(overall, c.Status)
	}
	return checks, overall
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	checks, overall := s.runChecks(r.Context())

	response := HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     middleware.GetReqID(r.Context()),
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, response)
}

// handleReadiness reports whether the server can take traffic: every check
// must be healthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := s.runChecks(r.Context())
	ready := overall == HealthStatusHealthy

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]interface{}{
		"ready":          ready,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// checkWheelHealth generates a small wheel and validates it.
func (s *Server) checkWheelHealth() HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := fmt.Sprintf("%d tiers available", len(wheel.AllTiers()))

	w, err := wheel.Generate(10, wheel.DefaultTier, nil)
	if err == nil {
		err = w.Validate()
	}
	if err != nil {
		status = HealthStatusUnhealthy
		message = "wheel generation failed: " + err.Error()
	}
	return newCheck(status, message, start)
}

func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	if s.db == nil {
		return newCheck(HealthStatusDegraded, "Database not configured", start)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return newCheck(HealthStatusUnhealthy, "Database ping failed: "+err.Error(), start)
	}
	return newCheck(HealthStatusHealthy, "Database connection healthy", start)
}

func (s *Server) checkScannerHealth() HealthCheck {
	start := time.Now()
	if s.scanner == nil {
		return newCheck(HealthStatusDegraded, "Scanner not configured", start)
	}
	return newCheck(HealthStatusHealthy, fmt.Sprintf("Scanner healthy (%d workers)", s.scanner.Workers()), start)
}

func (s *Server) checkSessionsHealth() HealthCheck {
	start := time.Now()
	if s.sessions == nil {
		return newCheck(HealthStatusDegraded, "Sessions not configured", start)
	}
	return newCheck(HealthStatusHealthy, fmt.Sprintf("%d active sessions", s.sessions.Len()), start)
}

func newCheck(status HealthStatus, message string, start time.Time) HealthCheck {
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
