package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	// sendBuffer is the per-client queue depth. A client that falls this
	// far behind starts losing messages rather than stalling the feed.
	sendBuffer = 256

	// writeWait bounds a single frame write.
	writeWait = 5 * time.Second
)

// Client is one connected WebSocket consumer.
type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan Message
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, userID string, logger *zap.Logger) *Client {
	c := &Client{conn: conn, userID: userID, logger: logger}
	c.send = make(chan Message, sendBuffer)
	return c
}

// Hub tracks the open WebSocket connections and fans stream messages out to
// all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: map[*Client]bool{}, logger: logger}
}

// Register adds a client to the fan-out set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.logger.Debug("ws client joined", zap.String("user_id", c.userID))
}

// Unregister removes a client and closes its send channel. Calling it for a
// client the hub never saw, or calling it twice, does nothing.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	h.logger.Debug("ws client left", zap.String("user_id", c.userID))
}

// Broadcast queues msg for every connected client. A slow client never
// blocks the feed: when its buffer is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("ws send queue full, dropping",
				zap.String("user_id", c.userID),
				zap.String("type", string(msg.Type)))
		}
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump drains the send channel onto the wire until the channel closes,
// the context ends, or a write fails.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.writeOne(ctx, msg); err != nil {
				c.logger.Debug("ws write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) writeOne(ctx context.Context, msg Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return wsjson.Write(writeCtx, c.conn, msg)
}

// readPump drains incoming frames to notice a disconnect. Clients have
// nothing to say to us.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
