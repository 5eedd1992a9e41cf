package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the hub to accept a register/unregister request
	hubWait = 5 * time.Second
)

// Client is a Peer backed by a gorilla WebSocket connection. Outbound
// frames are queued on send and written by writePump; a client whose queue
// is full is closed.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	maxMessageSize int64

	// Connection state management
	ctx    context.Context
	cancel context.CancelFunc
	closed int32 // atomic flag to track if client is closed
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	opts := hub.Options()

	return &Client{
		id:             uuid.New().String(),
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, opts.SendBuffer),
		maxMessageSize: opts.MaxMessageSize,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues data without blocking.
func (c *Client) Send(data []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		slog.Warn("Send buffer full, closing client", "connectionID", c.id)
		c.Close()
		return ErrClientDisconnected
	}
}

// Close marks the client closed and tears down the connection. readPump
// notices and unregisters the client.
func (c *Client) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		return c.conn.Close()
	}
	return nil
}

// isClosed returns true if the client is closed
func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) readPump() {
	defer func() {
		c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), hubWait)
		defer cancel()
		if err := c.hub.Unregister(ctx, c); err != nil {
			slog.Debug("Unregister failed", "connectionID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "connectionID", c.id, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "connectionID", c.id, "error", err)
			}
			return
		}

		if err := c.hub.Dispatch(c.ctx, c, message); err != nil {
			slog.Debug("Dispatch aborted", "connectionID", c.id, "error", err)
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "connectionID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "connectionID", c.id, "error", err)
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}
