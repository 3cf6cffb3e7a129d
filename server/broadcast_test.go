package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedline/scheduler/logger"
	"github.com/feedline/scheduler/scheduler"
)

func TestHubBroadcastsExecutionEvents(t *testing.T) {
	collaborator := okCollaborator(t)
	f := newServerFixture(t, collaborator.URL, nil)
	f.do(t, http.MethodPost, "/api/jobs", registerRequest("cleanup-sessions"))

	// Serve the real mux so a WebSocket client can connect
	httpSrv := httptest.NewServer(f.handler)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the hub to see the client before triggering
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec := f.do(t, http.MethodPost, "/api/jobs/cleanup-sessions/trigger?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Expect a started event followed by a completed event
	types := make(map[string]bool)
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var envelope struct {
			Type    string `json:"type"`
			JobName string `json:"job_name"`
		}
		require.NoError(t, json.Unmarshal(data, &envelope))
		assert.Equal(t, "cleanup-sessions", envelope.JobName)
		types[envelope.Type] = true
	}

	assert.True(t, types["execution_started"])
	assert.True(t, types["execution_completed"])
}

func TestHubSkipsSlowClients(t *testing.T) {
	hub := NewHub(logger.NewNop())

	// No clients connected: broadcast is a no-op, not a block
	sent := hub.broadcastMessage(ExecutionStartedMessage{Type: "execution_started"})
	assert.Zero(t, sent)

	hub.BroadcastExecutionStarted("job", "id", scheduler.TriggerScheduler)
	hub.BroadcastExecutionCompleted("job", "id", &scheduler.JobResult{Success: true}, 10)
	hub.BroadcastExecutionFailed("job", "id", "boom", 10)
}
