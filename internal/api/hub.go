package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"zonechain-engine/internal/events"
	"zonechain-engine/internal/logging"
)

// clientSendBuffer bounds the per-client outbound queue; a slow client that
// fills it is disconnected rather than allowed to block the broadcaster.
const clientSendBuffer = 32

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans out events.Event values to every connected WebSocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]struct{})}
}

// ServeWS upgrades the request to a WebSocket connection and registers it
// with the hub. The connection is purely observational; no client input is
// read beyond what's needed to detect disconnection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Default().WithComponent("feed").WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, clientSendBuffer)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

// readPump exists only to detect client disconnection; the live feed takes
// no input from clients.
func (h *Hub) readPump(client *hubClient) {
	defer h.unregister(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	defer client.conn.Close()
	for msg := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// onEvent is the events.Subscriber registered against the event bus. It
// must not block: broadcasting happens over each client's buffered
// channel, and a full buffer drops the client instead of stalling the
// publisher.
func (h *Hub) onEvent(evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}
