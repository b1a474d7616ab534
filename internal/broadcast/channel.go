// Package broadcast adapts the pub/sub bus into room-scoped channels with
// named events, mirroring the trigger/bind contract of hosted push
// services. Publishers trigger an event on a room; subscribers bind
// handlers per event name and unbind on the way out.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/driftchat/drift/internal/pubsub"
	"github.com/driftchat/drift/internal/topics"
)

// metaKeyEvent carries the event name through the bus metadata.
const metaKeyEvent = "event"

// Event is a single named event received on a room channel.
type Event struct {
	Name string
	// SenderID is the bus-level user attribution, when present.
	SenderID string
	// Payload is the JSON-encoded event body.
	Payload []byte
}

// Channel fans events out to all subscribers of a room topic.
type Channel struct {
	pub    pubsub.Publisher
	sub    pubsub.Subscriber
	logger *slog.Logger
}

// New creates a Channel on top of the given bus.
func New(pub pubsub.Publisher, sub pubsub.Subscriber) *Channel {
	return &Channel{
		pub:    pub,
		sub:    sub,
		logger: slog.Default().With("service", "broadcast"),
	}
}

// Trigger publishes a named event on the room's topic. The payload is
// JSON-encoded; delivery order follows the underlying bus's per-topic
// order, with no guarantee across rooms.
func (c *Channel) Trigger(ctx context.Context, roomID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}

	topic := topics.Room(roomID)
	if err := topics.Validate(topic); err != nil {
		return err
	}

	return c.pub.Publish(ctx, pubsub.Message{
		Topic:    topic,
		Payload:  body,
		Metadata: map[string]string{metaKeyEvent: event},
	})
}

// Subscribe starts listening on the room's topic and returns a
// Subscription for binding event handlers. The subscription lives until
// Close is called or the context is canceled.
func (c *Channel) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	topic := topics.Room(roomID)
	if err := topics.Validate(topic); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := newSubscription(topic, cancel, c.logger)

	if err := c.sub.Subscribe(subCtx, topic, s.dispatch); err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return s, nil
}
