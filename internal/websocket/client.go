package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/driftchat/drift/internal/domain"
)

const writeTimeout = 10 * time.Second

// Client is a single WebSocket connection bound to one room.
type Client struct {
	identity domain.Identity
	roomID   string
	conn     *websocket.Conn

	mu   sync.RWMutex
	out  chan []byte
	dead bool
}

func newClient(identity domain.Identity, roomID string, conn *websocket.Conn) *Client {
	return &Client{
		identity: identity,
		roomID:   roomID,
		conn:     conn,
		out:      make(chan []byte, 256),
	}
}

// send queues a frame without blocking. A client that cannot drain its
// buffer has its frames dropped rather than stalling the room.
func (c *Client) send(frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dead {
		return
	}
	select {
	case c.out <- frame:
	default:
		slog.Warn("Client send buffer full, dropping frame",
			"user_id", c.identity.UserID, "room_id", c.roomID)
	}
}

// sendError reports a rejected submission back to this client only.
func (c *Client) sendError(message string) {
	body, err := json.Marshal(errorFrame{Message: message})
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: EventError, Data: body})
	if err != nil {
		return
	}
	c.send(frame)
}

// close marks the client dead and stops the write pump.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return
	}
	c.dead = true
	close(c.out)
}

// readPump reads frames from the connection until it closes, feeding
// each through the message pipeline.
func (c *Client) readPump(b *Bridge) {
	defer func() {
		b.leave(c)
		c.conn.Close(websocket.StatusNormalClosure, "client disconnected")
	}()

	for {
		_, payload, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && err != io.EOF {
				slog.Debug("WebSocket read ended", "user_id", c.identity.UserID, "error", err)
			}
			return
		}
		b.submit(c, payload)
	}
}

// writePump drains the outbound buffer to the connection.
func (c *Client) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "server-side cleanup")

	for frame := range c.out {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			return
		}
	}
}
