package websocket

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
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newHubServer starts an HTTP server that registers every connection with the hub.
func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	}))
	t.Cleanup(server.Close)

	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(10)
	server := newHubServer(t, hub)

	first := dial(t, server)
	second := dial(t, server)

	// Wait for both registrations to land.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveConnections() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 2, hub.ActiveConnections())

	hub.Broadcast(Event{Type: "send", Data: map[string]string{"recipient": "a@example.com"}})

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read broadcast: %v", err)
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		assert.Equal(t, "send", event.Type)
	}
}

func TestHubConnectionLimit(t *testing.T) {
	hub := NewHub(1)
	server := newHubServer(t, hub)

	first := dial(t, server)
	_ = first

	deadline := time.Now().Add(2 * time.Second)
	for hub.ActiveConnections() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, hub.ActiveConnections())

	// The second connection is refused by the hub and closed.
	second := dial(t, server)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, hub.ActiveConnections())
}

func TestNilHubBroadcast(t *testing.T) {
	var hub *Hub
	// Must not panic.
	hub.Broadcast(Event{Type: "noop"})
}
