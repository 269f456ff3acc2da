// Package ws implements the WebSocket adapter that mirrors session
// event streams to connected clients. Unlike the SSE endpoint — one
// exclusive reader per session — this surface fans out: any number of
// clients, each choosing which sessions to follow.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all outbound WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// controlMessage is what clients send to manage their subscriptions.
// A client that never subscribes receives every session (firehose).
type controlMessage struct {
	Subscribe   string `json:"subscribe,omitempty"`
	Unsubscribe string `json:"unsubscribe,omitempty"`
}

// client is one connected WebSocket with its session filter.
type client struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]struct{} // nil until the first subscribe
}

// wants reports whether the client should receive events for the
// session. No explicit subscriptions means everything.
func (c *client) wants(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		return true
	}
	_, ok := c.sessions[sessionID]
	return ok
}

// apply updates the filter from a control message.
func (c *client) apply(ctl controlMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctl.Subscribe != "" {
		if c.sessions == nil {
			c.sessions = make(map[string]struct{})
		}
		c.sessions[ctl.Subscribe] = struct{}{}
	}
	if ctl.Unsubscribe != "" && c.sessions != nil {
		delete(c.sessions, ctl.Unsubscribe)
	}
}

// Hub tracks connected clients and routes session events to the ones
// that asked for them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// HandleWS upgrades the connection and serves its control messages
// until the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{ws: ws, cancel: cancel}

	// ?session=<id> preselects a filter without a control round-trip.
	if id := r.URL.Query().Get("session"); id != "" {
		c.apply(controlMessage{Subscribe: id})
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	// Block here: the request context (and so ctx) is cancelled as soon
	// as the handler returns.
	h.serveClient(ctx, c)
}

// serveClient reads subscription changes and detects disconnects.
func (h *Hub) serveClient(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		var ctl controlMessage
		if err := json.Unmarshal(data, &ctl); err != nil {
			slog.Debug("ignoring malformed ws control message", "error", err)
			continue
		}
		c.apply(ctl)
	}
}

// Publish delivers a session's message to every client whose filter
// matches. Writes to dead connections evict them.
func (h *Hub) Publish(ctx context.Context, sessionID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(sessionID) {
			continue
		}
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("websocket disconnected")
	}
}
