package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
// It is intentionally simple and acts as a wrapper for raw data.
type Message struct {
	// Topic identifies the channel the message belongs to.
	Topic string
	// UserID identifies the user who initiated the message, when known.
	UserID string
	// Payload contains the raw message data (JSON in this application).
	Payload []byte
	// Metadata carries arbitrary key-value context, such as the broadcast
	// event name.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the pub/sub system.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the pub/sub
// system.
type Subscriber interface {
	// Subscribe starts listening to the given topic, processing messages
	// with the handler until the context is canceled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
