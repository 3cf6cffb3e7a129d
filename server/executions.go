package server

import (
	"net/http"
	"strconv"
	"strings"
)

// HandleExecution handles GET /api/executions/{id}
func (s *Server) HandleExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/executions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "Missing execution id")
		return
	}

	rec, err := s.engine.Executions().GetExecution(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListExecutions serves GET /api/jobs/{name}/executions with
// limit/offset pagination, most recent first. A job name with no history
// (including deleted jobs) yields an empty page.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit > 200 {
		limit = 200
	}

	executions, total, err := s.engine.Executions().ListExecutions(name, limit, offset)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list executions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: executions,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// handleJobStats serves GET /api/jobs/{name}/stats?window_days=N
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	windowDays := queryInt(r, "window_days", 30)

	stats, err := s.engine.Executions().Stats(name, windowDays)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to compute job stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// queryInt parses an integer query parameter, falling back to a default on
// absence or garbage
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
