// Package ws implements the WebSocket live event feed consumed by the
// dashboard. Delivery is best effort; slow consumers lose messages
// rather than stalling ingestion.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hooktrace/hooktrace/internal/domain/event"
)

const (
	// sendQueueSize bounds the per-connection backlog. When it fills,
	// further messages are dropped for that connection only.
	sendQueueSize = 64

	// writeTimeout caps a single frame write to one client.
	writeTimeout = 5 * time.Second
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection with its send queue.
type conn struct {
	ws      *websocket.Conn
	send    chan []byte
	cancel  context.CancelFunc
	dropped int
}

// Hub manages all active WebSocket connections and broadcasts admitted
// events to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket connection, registers it
// with the hub and serves it until the client goes away. It blocks for
// the connection's lifetime; returning would cancel the request context
// and kill the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		cancel: cancel,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	go c.writeLoop(ctx, h)

	// Read loop: detects disconnects and consumes pings. Runs on the
	// handler goroutine so the request context stays alive.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			break
		}
	}

	h.remove(c)
	_ = ws.Close(websocket.StatusNormalClosure, "")
}

// writeLoop drains the connection's send queue. A failed or timed-out
// write drops the connection.
func (c *conn) writeLoop(ctx context.Context, h *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				h.remove(c)
				return
			}
		}
	}
}

// BroadcastEvent pushes one classified event to every connected client.
// It never blocks: each connection has a bounded queue and messages to
// a full queue are dropped.
func (h *Hub) BroadcastEvent(_ context.Context, ev *event.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}
	h.broadcast(Message{Type: "event", Payload: payload})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			c.dropped++
			if c.dropped == 1 || c.dropped%100 == 0 {
				slog.Warn("websocket slow consumer, dropping", "dropped", c.dropped)
			}
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
