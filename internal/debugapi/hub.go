package debugapi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/baton-gateway/baton/internal/eventbus"
	"github.com/baton-gateway/baton/internal/logging"
)

// wsClient is one connected dashboard websocket, subscribed to every
// eventbus.Event as a live read-only feed.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *hub
	logger *logging.Logger
}

func newWSClient(id string, conn *websocket.Conn, h *hub, logger *logging.Logger) *wsClient {
	return &wsClient{id: id, conn: conn, send: make(chan []byte, 64), hub: h, logger: logger}
}

// writePump drains send onto the socket until the hub closes it.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards client input; this is a read-only push feed, but the
// read loop must run to process control frames and detect disconnects.
func (c *wsClient) readPump() {
	defer c.hub.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// hub fans out gateway events to every connected dashboard socket.
type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *logging.Logger
}

func newHub(bus eventbus.Bus, logger *logging.Logger) *hub {
	h := &hub{clients: make(map[*wsClient]bool), logger: logger}
	bus.Subscribe(h.onEvent)
	return h
}

func (h *hub) onEvent(ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Warn("failed to marshal event for dashboard feed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Zap().Warn("dashboard client send buffer full, dropping message", zap.String("client_id", c.id))
		}
	}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll is used on server shutdown.
func (h *hub) closeAll(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
