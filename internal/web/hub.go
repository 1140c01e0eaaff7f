package web

import (
	"context"
	"log/slog"
	"net/http"
	"rssreader/internal/metrics"
	"rssreader/internal/render"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 512
	wsSendBuffer   = 64
)

// Message is one region update pushed to the browser.
type Message struct {
	Region render.Region `json:"region"`
	HTML   string        `json:"html"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans rendered fragments out to every connected browser. A client that
// cannot keep up is disconnected instead of slowing the publisher down.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	readTimeout  time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	log *slog.Logger
}

type HubOption func(*Hub)

// WithKeepalive overrides the ping interval and the read deadline a pong refreshes.
func WithKeepalive(pingInterval time.Duration, readTimeout time.Duration) HubOption {
	return func(h *Hub) {
		h.pingInterval = pingInterval
		h.readTimeout = readTimeout
	}
}

func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingInterval: wsPingInterval,
		readTimeout:  wsReadTimeout,
		clients:      make(map[*client]struct{}),
		log:          log,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Publish implements render.Publisher.
func (h *Hub) Publish(region render.Region, fragment string) {
	msg := Message{Region: region, HTML: fragment}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("Dropping slow websocket client",
				"remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection. initial is called
// under the hub lock so nothing published afterwards can be overtaken by it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial func() []Message) {
	if h.isClosed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "Failed to upgrade websocket",
			"error", err)
		return
	}

	c := &client{conn: conn, send: make(chan Message, wsSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	for _, msg := range initial() {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	metrics.LiveClients.Inc()
	h.log.DebugContext(r.Context(), "Websocket client is connected",
		"remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
	metrics.LiveClients.Dec()
}

// readPump only exists to process control frames and notice disconnects.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.DebugContext(ctx, "Websocket client is gone",
					"error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
			if err != nil {
				h.remove(c)
				return
			}
		}
	}
}
