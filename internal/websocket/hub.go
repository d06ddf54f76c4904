package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a WebSocket connection.
type Client struct {
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Hub manages active WebSocket connections and broadcasts engine events
// (dispatch cycle results, per-send outcomes, ingestion summaries) to all of
// them. It supports multiple connections (e.g., multiple admin tabs).
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	max     int
}

// Event is one engine event pushed to connected clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewHub creates a new Hub with a connection limit.
func NewHub(max int) *Hub {
	if max <= 0 {
		max = 10
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		max:     max,
	}
}

// Register adds a WebSocket connection. If the limit is exceeded, the new
// connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.max {
		log.Printf("websocket: max connections (%d) exceeded, closing new connection", h.max)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client)
	_ = client.conn.Close()
}

// Broadcast sends an event to all connected clients. A nil hub is a no-op so
// callers can run without an event sink.
func (h *Hub) Broadcast(event Event) {
	if h == nil {
		return
	}

	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to marshal event %q: %v", event.Type, err)
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("websocket: failed to write event: %v", err)
			// Best-effort cleanup: unregister this client.
			go h.Unregister(client)
		}
	}
}

// ActiveConnections returns the number of active WebSocket connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
