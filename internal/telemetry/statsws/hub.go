// Package statsws fans out periodic statistics samples to connected
// dashboard clients over a gorilla/websocket connection, optionally gated
// by a bearer token.
package statsws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantum-proto/qsend/internal/telemetry/authtoken"
)

var ErrConnectionClosed = errors.New("statsws: connection closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Sample is one JSON-encoded statistics snapshot pushed to subscribers.
type Sample struct {
	SessionID       string  `json:"session_id"`
	SenderBase      int64   `json:"sender_base"`
	NextSequence    uint32  `json:"next_sequence"`
	EffectiveWindow uint32  `json:"effective_window"`
	BytesAcked      uint64  `json:"bytes_acked"`
	TotalTimeouts   uint64  `json:"total_timeouts"`
	TotalFastRetx   uint64  `json:"total_fast_retx"`
	EstRTT          float64 `json:"est_rtt"`
	Rto             float64 `json:"rto"`
	ThroughputMbps  float64 `json:"throughput_mbps"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages subscriber connections and broadcasts Samples to all of them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	logger   *zap.Logger
	verifier *authtoken.Verifier // nil disables auth
}

// NewHub creates a Hub. A nil verifier accepts all connections.
func NewHub(logger *zap.Logger, verifier *authtoken.Verifier) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		logger:   logger,
		verifier: verifier,
	}
}

// ServeHTTP upgrades the request to a websocket and registers it as a
// subscriber until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.verifier != nil {
		if _, err := h.verifier.Verify(bearerToken(r)); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast marshals sample and enqueues it on every connected client,
// dropping it for clients whose send buffer is full.
func (h *Hub) Broadcast(sample Sample) {
	data, err := json.Marshal(sample)
	if err != nil {
		h.logger.Warn("marshal stats sample failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("stats subscriber backpressured, dropping sample")
		}
	}
}

// Close tears down every subscriber connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// Subscribers are read-only; drain and discard to keep the
		// connection's control frames flowing.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
