package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event is the JSON envelope broadcast to WebSocket clients. Type is
// "state" for periodic snapshots and "message" for command notifications.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// client is one live WebSocket subscriber. Slow clients drop frames
// rather than stall the broadcaster.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans simulation events out to WebSocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// BroadcastEvent marshals an Event and queues it to every subscriber.
// Safe to call from any goroutine; subscribers with full buffers miss the
// frame.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("websocket: marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Drop the frame for this subscriber; the next tick
			// carries fresher data anyway.
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every subscriber and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// HandleWebSocket upgrades the request and streams events until the client
// disconnects. Incoming client messages are drained and ignored.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // browser dashboards connect cross-origin
	})
	if err != nil {
		log.Printf("websocket: accept: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	go c.writeLoop(r.Context())

	// Read loop: drain until error so we notice the disconnect.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}
	h.remove(c)
}

func (c *client) writeLoop(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
