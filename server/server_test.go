package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/db"
	schedtest "github.com/feedline/scheduler/internal/testing"
	"github.com/feedline/scheduler/logger"
	"github.com/feedline/scheduler/scheduler"
)

type serverFixture struct {
	server  *Server
	engine  *scheduler.Engine
	hub     *Hub
	handler http.Handler
}

func newServerFixture(t *testing.T, collaboratorURL string, tweak func(*config.Config)) *serverFixture {
	t.Helper()

	database := createMigratedDB(t)

	log := logger.NewNop()
	hub := NewHub(log)
	engine := scheduler.NewEngine(database, scheduler.EngineConfig{
		Services:        map[string]string{"user-service": collaboratorURL},
		DispatchTimeout: 5 * time.Second,
	}, hub, log)
	require.NoError(t, engine.Initialize())
	t.Cleanup(engine.Shutdown)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:           config.DefaultServerPort,
			AllowedOrigins: []string{"*"},
		},
	}
	if tweak != nil {
		tweak(cfg)
	}

	srv := New(engine, cfg, hub, log)
	return &serverFixture{
		server:  srv,
		engine:  engine,
		hub:     hub,
		handler: srv.routes(),
	}
}

func createMigratedDB(t *testing.T) *sql.DB {
	t.Helper()
	database := schedtest.CreateTestDB(t)
	require.NoError(t, db.Migrate(database, logger.NewNop()))
	return database
}

// do runs a request against the server's mux and returns the recorder
func (f *serverFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func registerRequest(name string) RegisterJobRequest {
	return RegisterJobRequest{
		Name:           name,
		DisplayName:    "Cleanup Expired Sessions",
		CronExpression: "0 3 * * *",
		JobType:        "cleanup",
		Service:        "user-service",
		Endpoint:       "/internal/jobs/cleanup-sessions",
		Config:         map[string]interface{}{"batchSize": float64(500)},
	}
}
