// Package websocket delivers room events to connected clients and feeds
// inbound frames through the message pipeline. Each room gets one
// broadcast subscription and one reconciled view, shared by every client
// connected to that room; the subscription is opened when the first
// client joins and released when the last one leaves.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/chat"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/middleware"
	"github.com/driftchat/drift/internal/roomview"
	"github.com/driftchat/drift/internal/topics"
)

// Bridge manages WebSocket connections and routes frames between
// connected clients and the room channels.
type Bridge struct {
	channel    *broadcast.Channel
	service    *chat.Service
	sweepEvery time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

// room is the shared fan-out state for one room's connected clients.
type room struct {
	id      string
	sub     *broadcast.Subscription
	view    *roomview.View
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewBridge creates a Bridge on top of the broadcast channel and the
// message pipeline. sweepEvery is the prune interval for each room's
// reconciled view.
func NewBridge(channel *broadcast.Channel, service *chat.Service, sweepEvery time.Duration) *Bridge {
	return &Bridge{
		channel:    channel,
		service:    service,
		sweepEvery: sweepEvery,
		logger:     slog.Default().With("service", "websocket"),
		rooms:      make(map[string]*room),
	}
}

// Handler returns the echo handler that upgrades GET /rooms/:roomId
// requests and attaches the client to its room.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, ok := middleware.IdentityFrom(c)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		}

		roomID := c.Param("roomId")
		if topics.SanitizeRoomID(roomID) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, domain.ErrMalformedChannel.Error())
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), nil)
		if err != nil {
			b.logger.Error("WebSocket upgrade failed", "error", err)
			return err
		}

		client := newClient(identity, roomID, conn)
		if err := b.join(client); err != nil {
			conn.Close(websocket.StatusInternalError, "room unavailable")
			return err
		}

		go client.writePump()
		b.sendSnapshot(client)
		client.readPump(b)
		return nil
	}
}

// join attaches the client to its room, opening the room's subscription
// and view on first join.
func (b *Bridge) join(client *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rooms[client.roomID]
	if !ok {
		var err error
		r, err = b.openRoom(client.roomID)
		if err != nil {
			return err
		}
		b.rooms[client.roomID] = r
	}

	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()

	b.logger.Info("Client joined", "user_id", client.identity.UserID, "room_id", client.roomID)
	return nil
}

// leave detaches the client, releasing the room when it empties.
func (b *Bridge) leave(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rooms[client.roomID]
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.clients, client)
	empty := len(r.clients) == 0
	r.mu.Unlock()

	client.close()

	if empty {
		r.sub.Close()
		r.view.Close()
		delete(b.rooms, client.roomID)
		b.logger.Info("Room released", "room_id", client.roomID)
	}
	b.logger.Info("Client left", "user_id", client.identity.UserID, "room_id", client.roomID)
}

// openRoom opens the shared subscription and view for a room. Called
// with b.mu held.
func (b *Bridge) openRoom(roomID string) (*room, error) {
	ctx := context.Background()

	sub, err := b.channel.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}

	view, err := roomview.New(ctx, b.channel, b.service, roomID,
		roomview.WithSweepInterval(b.sweepEvery))
	if err != nil {
		sub.Close()
		return nil, err
	}

	r := &room{
		id:      roomID,
		sub:     sub,
		view:    view,
		clients: make(map[*Client]struct{}),
	}
	sub.Bind(topics.EventNewMessage, r.fanout(topics.EventNewMessage))
	sub.Bind(topics.EventMessageExpired, r.fanout(topics.EventMessageExpired))
	return r, nil
}

// fanout forwards a room event to every connected client as a frame.
func (r *room) fanout(event string) broadcast.Handler {
	return func(e broadcast.Event) {
		frame, err := json.Marshal(Frame{Event: event, Data: e.Payload})
		if err != nil {
			return
		}
		r.mu.RLock()
		for client := range r.clients {
			client.send(frame)
		}
		r.mu.RUnlock()
	}
}

// sendSnapshot pushes the room's current reconciled messages to a newly
// joined client.
func (b *Bridge) sendSnapshot(client *Client) {
	b.mu.Lock()
	r, ok := b.rooms[client.roomID]
	b.mu.Unlock()
	if !ok {
		return
	}

	messages := r.view.Messages()
	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: EventSnapshot, Data: payload})
	if err != nil {
		return
	}
	client.send(frame)
}

// submit runs an inbound frame through the full message pipeline. Errors
// go back to the submitting client only.
func (b *Bridge) submit(client *Client, payload []byte) {
	var in inboundFrame
	if err := json.Unmarshal(payload, &in); err != nil {
		client.sendError("malformed frame")
		return
	}

	ctx := context.Background()
	var err error
	switch domain.Kind(in.Kind) {
	case domain.KindReceipt:
		if in.Receipt == nil {
			client.sendError("missing receipt payload")
			return
		}
		_, err = b.service.SubmitReceipt(ctx, client.roomID, client.identity.UserID, *in.Receipt)
	case domain.KindSplit:
		if in.Split == nil {
			client.sendError("missing split payload")
			return
		}
		_, err = b.service.SubmitSplit(ctx, client.roomID, client.identity.UserID, *in.Split)
	default:
		_, err = b.service.Submit(ctx, client.roomID, client.identity.UserID, in.Text)
	}
	if err != nil {
		client.sendError(err.Error())
	}
}
