package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// HandleWebSocket upgrades /ws connections and attaches them to the hub's
// execution event feed
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin header
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := newClient(s.hub, conn, s.logger)
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}
