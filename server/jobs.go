package server

import (
	"net/http"
	"strings"

	"github.com/feedline/scheduler/scheduler"
)

// HandleJobs handles requests to /api/jobs
// GET: list all jobs with scheduling state
// POST: register (or re-register) a job
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListJobs(w, r)
	case http.MethodPost:
		s.handleRegisterJob(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleJob handles requests to /api/jobs/{name} and its sub-resources:
//
//	GET    /api/jobs/{name}
//	DELETE /api/jobs/{name}
//	POST   /api/jobs/{name}/enable
//	POST   /api/jobs/{name}/disable
//	PATCH  /api/jobs/{name}/schedule
//	POST   /api/jobs/{name}/trigger
//	GET    /api/jobs/{name}/executions
//	GET    /api/jobs/{name}/stats
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing job name")
		return
	}
	name := pathParts[0]

	if len(pathParts) > 1 && pathParts[1] != "" {
		switch pathParts[1] {
		case "enable":
			s.handleSetEnabled(w, r, name, true)
		case "disable":
			s.handleSetEnabled(w, r, name, false)
		case "schedule":
			s.handleReschedule(w, r, name)
		case "trigger":
			s.handleTrigger(w, r, name)
		case "executions":
			s.handleListExecutions(w, r, name)
		case "stats":
			s.handleJobStats(w, r, name)
		default:
			writeError(w, http.StatusNotFound, "Unknown job sub-resource: "+pathParts[1])
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetJob(w, r, name)
	case http.MethodDelete:
		s.handleDeleteJob(w, r, name)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.engine.Registry().List()
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

func (s *Server) handleRegisterJob(w http.ResponseWriter, r *http.Request) {
	var req RegisterJobRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	def := req.toDefinition()
	if err := s.engine.Registry().Register(def); err != nil {
		writeEngineError(w, err)
		return
	}

	status, err := s.engine.Registry().Get(def.Name)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Infow("Job registered via API",
		"job", def.Name,
		"service", def.Service,
		"remote", r.RemoteAddr)

	writeJSON(w, http.StatusCreated, status)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, name string) {
	status, err := s.engine.Registry().Get(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, name string) {
	if err := s.engine.Registry().Delete(name); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Infow("Job deleted via API", "job", name, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "job": name})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request, name string, enabled bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var err error
	if enabled {
		err = s.engine.Registry().Enable(name)
	} else {
		err = s.engine.Registry().Disable(name)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	status, err := s.engine.Registry().Get(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RescheduleRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.CronExpression == "" {
		writeError(w, http.StatusBadRequest, "cron_expression is required")
		return
	}

	if err := s.engine.Registry().Reschedule(name, req.CronExpression); err != nil {
		writeEngineError(w, err)
		return
	}

	status, err := s.engine.Registry().Get(name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleTrigger starts an out-of-schedule execution. By default the dispatch
// proceeds in the background and the response is 202 with the execution id;
// ?wait=true blocks until the terminal JobResult is available.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if s.triggerLimiter != nil && !s.triggerLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "Trigger rate limit exceeded, retry later")
		return
	}

	// The body is optional; an empty body means a manual trigger with no
	// caller identity
	req := TriggerRequest{Source: string(scheduler.TriggerManual)}
	if r.Body != nil && r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			return
		}
		if req.Source == "" {
			req.Source = string(scheduler.TriggerManual)
		}
	}

	source := scheduler.TriggerSource(req.Source)
	if source != scheduler.TriggerManual && source != scheduler.TriggerAdmin {
		writeError(w, http.StatusBadRequest, "source must be \"manual\" or \"admin\"")
		return
	}

	wait := r.URL.Query().Get("wait") == "true"

	s.logger.Infow("Trigger requested",
		"job", name,
		"source", source,
		"wait", wait,
		"remote", r.RemoteAddr)

	result, record, err := s.engine.Trigger(source, name, req.ExternalUser, wait)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, TriggerResponse{
			ExecutionID: record.ID,
			JobName:     record.JobName,
			Status:      record.Status,
		})
		return
	}

	// The trigger succeeded even if the execution failed; the outcome lives
	// in the result and the ledger record
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution_id": record.ID,
		"result":       result,
	})
}
