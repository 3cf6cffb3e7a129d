package server

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// HandleHealth serves GET /health: engine state, job and timer counts,
// connected clients, and host memory headroom.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	engineHealth := s.engine.Health()

	health := map[string]interface{}{
		"status":         "ok",
		"engine":         engineHealth,
		"clients":        s.hub.ClientCount(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	}

	// Memory stats are best-effort; the endpoint stays useful without them
	if v, err := mem.VirtualMemory(); err == nil {
		health["memory"] = map[string]interface{}{
			"total_bytes":     v.Total,
			"available_bytes": v.Available,
			"used_percent":    v.UsedPercent,
		}
	}

	if engineHealth.State != "running" {
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}
