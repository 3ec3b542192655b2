package dbpool

import (
	"encoding/json"
	"net/http"
)

// LiveHandler serves GET /health/live: 200 OK if the process is running, no
// external calls.
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"live"}`))
	}
}

// ReadyHandler serves GET /health/ready: 200 OK only if the primary DB probe
// succeeds, 503 otherwise.
func (m *Manager) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probe := m.ProbeDB(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !probe.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(probe)
	}
}

// HealthHandler serves GET /health: the comprehensive DB+cache+pool summary,
// 503 when unhealthy.
func (m *Manager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
