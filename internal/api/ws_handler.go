package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mailwise/mailwise/internal/auth"
	ws "github.com/mailwise/mailwise/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint streaming engine events.
type WebSocketHandler struct {
	hub   *ws.Hub
	token string
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub, token string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		token: token,
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// This server is expected to run behind a reverse proxy in a trusted
		// environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the
// Hub. Authentication uses a query parameter (?token=...) since browsers
// cannot set headers on WebSocket connections.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !auth.ValidateToken(h.token, r.URL.Query().Get("token")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: Failed to upgrade connection: %v", err)
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		return
	}

	// Drain reads so control frames are processed; unregister on close.
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
