package routes

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"transmute/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	StartTime string            `json:"start_time"`
	Checks    map[string]string `json:"checks"`
}

// Global start time for uptime calculation
var startTime = time.Now()

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports "ok" with 200 when the job store answers, and
// "degraded" with 503 otherwise. Cache and ledger problems are listed
// but do not fail the check.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	status, code := "ok", http.StatusOK

	if err := s.Store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}
	if err := s.Mirror.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
	} else {
		checks["cache"] = "ok"
	}
	if s.Ledger != nil {
		if err := s.Ledger.CheckHealth(); err != nil {
			checks["failures"] = err.Error()
		} else {
			checks["failures"] = "ok"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(startTime)),
		StartTime: startTime.Format("2006-01-02 15:04:05 MST"),
		Checks:    checks,
	}
	if code != http.StatusOK {
		logger.Warnf("Health check degraded: %v", checks)
	}
	writeJSON(w, code, response)
}
