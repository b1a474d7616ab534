package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/driftchat/drift/internal/pubsub"
)

// Handler processes one event. Handlers for a subscription are invoked
// sequentially in delivery order; a handler that needs its own
// serialization with other work should hand the event off to a channel.
type Handler func(Event)

// Subscription is one listener on a room topic. Bind and Unbind may be
// called at any time; Close tears the subscription down and releases the
// underlying bus subscription.
type Subscription struct {
	topic  string
	cancel context.CancelFunc
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool
}

func newSubscription(topic string, cancel context.CancelFunc, logger *slog.Logger) *Subscription {
	return &Subscription{
		topic:    topic,
		cancel:   cancel,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Bind registers the handler for a named event, replacing any previous
// handler for that event. Events with no bound handler are dropped.
func (s *Subscription) Bind(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers[event] = h
}

// Unbind removes the handler for a named event.
func (s *Subscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

// Close unbinds all handlers and cancels the underlying subscription.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.handlers = make(map[string]Handler)
	s.mu.Unlock()

	s.cancel()
}

// dispatch routes a bus message to the handler bound for its event name.
func (s *Subscription) dispatch(ctx context.Context, msg pubsub.Message) error {
	event := msg.Metadata[metaKeyEvent]

	s.mu.RLock()
	h, ok := s.handlers[event]
	closed := s.closed
	s.mu.RUnlock()

	if closed || !ok {
		return nil
	}

	h(Event{Name: event, SenderID: msg.UserID, Payload: msg.Payload})
	return nil
}
