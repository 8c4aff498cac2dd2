package notify

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vidshare/internal/logging"
	"vidshare/internal/models"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer events may queue per client before it is dropped as too slow.
	sendBuffer = 16
)

type client struct {
	conn *websocket.Conn
	send chan models.Event
}

// Hub keeps the connected websocket clients and broadcasts events to them.
// Each client has its own writer goroutine, so Notify only enqueues.
type Hub struct {
	upgrader websocket.Upgrader
	log      logging.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

// NewHub accepts upgrades from origin, or from anywhere when origin is "*" or
// empty.
func NewHub(origin string, log logging.Logger) *Hub {
	h := &Hub{
		log:     log,
		clients: make(map[*client]bool),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if origin == "" || origin == "*" {
				return true
			}
			got := r.Header.Get("Origin")
			return got == "" || strings.EqualFold(got, origin)
		},
	}
	return h
}

// ServeHTTP upgrades the request and keeps reading until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn, send: make(chan models.Event, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) writePump(c *client) {
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.log.Debug(context.Background(), "dropping websocket client", "err", err)
			h.drop(c)
			return
		}
	}
}

// Notify queues ev for every client. A client whose queue is full is
// disconnected rather than waited for.
func (h *Hub) Notify(ctx context.Context, ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Debug(ctx, "dropping slow websocket client")
			h.remove(c)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		h.remove(c)
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with h.mu held.
func (h *Hub) remove(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}
