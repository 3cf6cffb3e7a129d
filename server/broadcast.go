package server

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedline/scheduler/scheduler"
)

// Hub fans execution lifecycle events out to connected WebSocket clients.
// It is created before the engine so the dispatcher can hold it as its
// ExecutionBroadcaster; the admin server attaches clients to it later.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *zap.SugaredLogger
}

// NewHub creates an empty hub
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Infow("WebSocket client connected", "clients", count)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Infow("WebSocket client disconnected", "clients", count)
}

// CloseAll disconnects every client, for server shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastMessage sends a message to all connected clients. A client whose
// send buffer is full misses the message rather than blocking the
// dispatcher.
func (h *Hub) broadcastMessage(msg interface{}) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.sendMsg <- msg:
			sent++
		default:
		}
	}
	return sent
}

// ExecutionStartedMessage announces a new running execution
type ExecutionStartedMessage struct {
	Type        string `json:"type"` // "execution_started"
	JobName     string `json:"job_name"`
	ExecutionID string `json:"execution_id"`
	TriggeredBy string `json:"triggered_by"`
	Timestamp   int64  `json:"timestamp"`
}

// ExecutionCompletedMessage announces a successful terminal state
type ExecutionCompletedMessage struct {
	Type           string `json:"type"` // "execution_completed"
	JobName        string `json:"job_name"`
	ExecutionID    string `json:"execution_id"`
	DurationMs     int    `json:"duration_ms"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsSucceeded int    `json:"items_succeeded"`
	ItemsFailed    int    `json:"items_failed"`
	Timestamp      int64  `json:"timestamp"`
}

// ExecutionFailedMessage announces a failed terminal state
type ExecutionFailedMessage struct {
	Type        string `json:"type"` // "execution_failed"
	JobName     string `json:"job_name"`
	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	DurationMs  int    `json:"duration_ms"`
	Timestamp   int64  `json:"timestamp"`
}

// BroadcastExecutionStarted implements scheduler.ExecutionBroadcaster
func (h *Hub) BroadcastExecutionStarted(jobName, executionID string, triggeredBy scheduler.TriggerSource) {
	h.broadcastMessage(ExecutionStartedMessage{
		Type:        "execution_started",
		JobName:     jobName,
		ExecutionID: executionID,
		TriggeredBy: string(triggeredBy),
		Timestamp:   time.Now().Unix(),
	})
}

// BroadcastExecutionCompleted implements scheduler.ExecutionBroadcaster
func (h *Hub) BroadcastExecutionCompleted(jobName, executionID string, result *scheduler.JobResult, durationMs int) {
	h.broadcastMessage(ExecutionCompletedMessage{
		Type:           "execution_completed",
		JobName:        jobName,
		ExecutionID:    executionID,
		DurationMs:     durationMs,
		ItemsProcessed: result.ItemsProcessed,
		ItemsSucceeded: result.ItemsSucceeded,
		ItemsFailed:    result.ItemsFailed,
		Timestamp:      time.Now().Unix(),
	})
}

// BroadcastExecutionFailed implements scheduler.ExecutionBroadcaster
func (h *Hub) BroadcastExecutionFailed(jobName, executionID, errorMsg string, durationMs int) {
	h.broadcastMessage(ExecutionFailedMessage{
		Type:        "execution_failed",
		JobName:     jobName,
		ExecutionID: executionID,
		Error:       errorMsg,
		DurationMs:  durationMs,
		Timestamp:   time.Now().Unix(),
	})
}
