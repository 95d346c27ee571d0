package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"temp_chat/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 64 * 1024
)

// Client is the websocket side of a session: ReadPump feeds decoded frames to
// the hub, WritePump drains the send buffer onto the socket.
type Client struct {
	id   string
	log  *slog.Logger
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(conn *websocket.Conn, sendBuffer int, log *slog.Logger) *Client {
	return &Client{
		log:  log,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Send queues a frame without blocking.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting frames. WritePump flushes what is queued, sends a
// close message and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

func (c *Client) ReadPump(h *Hub) {
	defer h.Disconnect(c.id)

	c.conn.SetReadLimit(maxFrameSize)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}

		frame, err := protocol.DecodeInbound(message)
		if err != nil {
			c.log.Debug("dropping malformed frame", "conn_id", c.id, "error", err)
			continue
		}
		if !h.Deliver(c.id, frame) {
			return
		}
	}
}

func (c *Client) WritePump() {
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.log.Debug("failed to close websocket connection", "conn_id", c.id, "error", err)
		}
	}(c.conn)

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.log.Warn("websocket write failed", "conn_id", c.id, "error", err)
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	closing := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, closing); err != nil {
		c.log.Debug("failed to send close message", "conn_id", c.id, "error", err)
	}
}
