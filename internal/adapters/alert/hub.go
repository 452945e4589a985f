package alert

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Message is the frame pushed to dashboards.
type Message struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Data    model.Alert `json:"data"`
}

var clientIDs atomic.Uint64

type client struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts alerts to websocket subscribers. Slow subscribers whose
// buffer is full are disconnected rather than waited for.
type Hub struct {
	mu           sync.Mutex
	clients      map[uint64]*client
	closed       bool
	origins      []string
	clientBuffer int
	upgrader     websocket.Upgrader
	log          logger.Logger
}

// NewHub returns a hub with no subscribers.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:      make(map[uint64]*client),
		clientBuffer: 64,
		log:          logger.Get().Named("alert-hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.origins) == 0 || slices.Contains(h.origins, "*") {
		return true
	}
	return slices.Contains(h.origins, r.Header.Get("Origin"))
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := &client{id: clientIDs.Add(1), conn: conn, send: make(chan []byte, h.clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info(r.Context(), "dashboard connected", logger.Int("clients", n))
	go h.writePump(c)
	go h.readPump(c)
}

// Notify broadcasts a to every subscriber without blocking.
func (h *Hub) Notify(ctx context.Context, channel string, a model.Alert) error {
	b, err := json.Marshal(Message{Type: "alert", Channel: channel, Data: a})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.drop(id)
			h.log.Warn(ctx, "dashboard too slow, disconnecting", logger.Int64("client", int64(id)))
		}
	}
	return nil
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve blocks until ctx ends, then disconnects every subscriber.
func (h *Hub) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()

	<-ctx.Done()

	h.mu.Lock()
	n := len(h.clients)
	for id := range h.clients {
		h.drop(id)
	}
	h.closed = true
	h.mu.Unlock()

	h.log.Info(context.Background(), "alert hub stopped", logger.Int("clients_closed", n))
	return ctx.Err()
}

// drop must be called with mu held.
func (h *Hub) drop(id uint64) {
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.drop(c.id)
	h.mu.Unlock()
}

// readPump discards client frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug(context.Background(), "dashboard closed unexpectedly", logger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
