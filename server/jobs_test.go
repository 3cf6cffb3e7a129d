package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/internal/util"
	"github.com/feedline/scheduler/scheduler"
)

func okCollaborator(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scheduler.JobResult{Success: true, ItemsProcessed: 3, ItemsSucceeded: 3})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterAndListJobs(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)

	rec := f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var status scheduler.JobStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, "cleanup-sessions", status.Definition.Name)
	assert.True(t, status.Definition.Enabled)
	assert.True(t, status.IsRunning)
	assert.NotNil(t, status.NextFireAt)

	rec = f.do(t, http.MethodGet, "/api/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list ListJobsResponse
	decodeBody(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "cleanup-sessions", list.Jobs[0].Definition.Name)
}

func TestRegisterJobValidation(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)

	badCron := registerRequest("broken")
	badCron.CronExpression = "not a cron"
	rec := f.do(t, http.MethodPost, "/api/jobs", badCron)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknownService := registerRequest("ghost")
	unknownService.Service = "ghost-service"
	rec = f.do(t, http.MethodPost, "/api/jobs", unknownService)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	missingName := registerRequest("")
	rec = f.do(t, http.MethodPost, "/api/jobs", missingName)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAndDeleteJob(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)

	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodGet, "/api/jobs/cleanup-sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/jobs/cleanup-sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/jobs/cleanup-sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnableDisableEndpoints(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status scheduler.JobStatus
	decodeBody(t, rec, &status)
	assert.False(t, status.Definition.Enabled)
	assert.False(t, status.IsRunning)

	rec = f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &status)
	assert.True(t, status.IsRunning)

	// Wrong method
	rec = f.do(t, http.MethodGet, "/api/jobs/cleanup-sessions/enable", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRescheduleEndpoint(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPatch, "/api/jobs/cleanup-sessions/schedule", RescheduleRequest{CronExpression: "30 2 * * 1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var status scheduler.JobStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, "30 2 * * 1", status.Definition.CronExpression)

	rec = f.do(t, http.MethodPatch, "/api/jobs/cleanup-sessions/schedule", RescheduleRequest{CronExpression: "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, "/api/jobs/cleanup-sessions/schedule", RescheduleRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerAsync(t *testing.T) {
	collaborator := okCollaborator(t)
	f := newServerFixture(t, collaborator.URL, nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TriggerResponse
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.ExecutionID)
	assert.Equal(t, "cleanup-sessions", resp.JobName)
	assert.Equal(t, scheduler.ExecutionStatusRunning, resp.Status)

	// The execution id is immediately queryable and reaches a terminal
	// state shortly after
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = f.do(t, http.MethodGet, "/api/executions/"+resp.ExecutionID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var execution scheduler.ExecutionRecord
		decodeBody(t, rec, &execution)
		if execution.Status != scheduler.ExecutionStatusRunning {
			assert.Equal(t, scheduler.ExecutionStatusCompleted, execution.Status)
			assert.Equal(t, scheduler.TriggerManual, execution.TriggeredBy)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("triggered execution never completed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTriggerWait(t *testing.T) {
	collaborator := okCollaborator(t)
	f := newServerFixture(t, collaborator.URL, nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger?wait=true", TriggerRequest{Source: "admin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ExecutionID string               `json:"execution_id"`
		Result      *scheduler.JobResult `json:"result"`
	}
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.Success)
	assert.Equal(t, 3, resp.Result.ItemsProcessed)
	assert.NotEmpty(t, resp.ExecutionID)
}

func TestTriggerValidation(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger", TriggerRequest{Source: "scheduler"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/missing/trigger", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRateLimit(t *testing.T) {
	collaborator := okCollaborator(t)
	f := newServerFixture(t, collaborator.URL, func(cfg *config.Config) {
		cfg.Server.TriggerRatePerMinute = 1
		cfg.Server.TriggerBurst = 1
	})
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRegisterDisabledJob(t *testing.T) {
	f := newServerFixture(t, "http://unused.invalid", nil)

	req := registerRequest("cleanup-sessions")
	req.Enabled = util.Ptr(false)
	rec := f.do(t, http.MethodPost, "/api/jobs", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var status scheduler.JobStatus
	decodeBody(t, rec, &status)
	assert.False(t, status.Definition.Enabled)
	assert.False(t, status.IsRunning)
}
