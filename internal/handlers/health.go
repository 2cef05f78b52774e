package handlers

import (
	"net/http"
	"runtime"
	"time"

	"raw-organizer/internal/startup"
)

const (
	statusRunning  = "running"
	statusStarting = "starting"
	statusDone     = "done"
	statusFailed   = "failed"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Run info
	Stage   string `json:"stage,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
	Error   string `json:"error,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the state of the organize run
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	snap := h.progress.Snapshot()

	response := HealthResponse{
		Ready:        snap.Running || snap.Done,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Stage:        snap.Stage,
		Error:        snap.Error,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if snap.Running || snap.Done {
		response.Elapsed = snap.Elapsed.Round(time.Millisecond).String()
	}

	switch {
	case snap.Error != "":
		response.Status = statusFailed
	case snap.Done:
		response.Status = statusDone
	case snap.Running:
		response.Status = statusRunning
	default:
		response.Status = statusStarting
	}

	w.Header().Set("Content-Type", "application/json")
	if response.Status == statusFailed || response.Status == statusStarting {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}
