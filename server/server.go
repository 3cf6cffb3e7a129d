// Package server exposes the scheduler's admin HTTP surface: job CRUD,
// manual triggers, execution history, stats, health, and a WebSocket feed of
// execution lifecycle events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/scheduler"
)

// Server is the admin HTTP server. Scheduling lives in the engine; the
// server adds transport concerns: routing, CORS, trigger rate limiting, and
// WebSocket client management via the hub.
type Server struct {
	engine *scheduler.Engine
	cfg    *config.Config
	hub    *Hub
	logger *zap.SugaredLogger

	// triggerLimiter bounds manual/admin trigger requests across the whole
	// admin surface; nil when the limit is disabled
	triggerLimiter *rate.Limiter

	httpServer *http.Server
	startedAt  time.Time
}

// New creates the admin server over a running engine. The hub must be the
// same one the engine broadcasts to.
func New(engine *scheduler.Engine, cfg *config.Config, hub *Hub, logger *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		cfg:    cfg,
		hub:    hub,
		logger: logger,
	}

	if cfg.Server.TriggerRatePerMinute > 0 {
		burst := cfg.Server.TriggerBurst
		if burst <= 0 {
			burst = config.DefaultTriggerBurst
		}
		s.triggerLimiter = rate.NewLimiter(
			rate.Limit(float64(cfg.Server.TriggerRatePerMinute)/60.0),
			burst,
		)
	}

	return s
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	s.startedAt = time.Now().UTC()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Infow("Admin server listening", "port", s.cfg.Server.Port)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server and disconnects WebSocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
