// Package roomview maintains a live, expiry-aware snapshot of a room's
// messages. A view seeds itself from stored history, folds in live
// events from the broadcast channel, and periodically sweeps out
// messages whose lifetime has elapsed. The sweep is authoritative:
// expiry pushes are a fast path and a view stays correct even when
// none of them arrive.
package roomview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/topics"
)

// HistoryProvider supplies the stored snapshot a view seeds from.
type HistoryProvider interface {
	History(ctx context.Context, roomID string) ([]domain.Message, error)
}

// Option configures a View.
type Option func(*View)

// WithSweepInterval overrides how often the view prunes expired
// messages. The default is 5 seconds.
func WithSweepInterval(d time.Duration) Option {
	return func(v *View) { v.sweepEvery = d }
}

// WithClock overrides the view's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(v *View) { v.now = now }
}

// View is a reconciled, per-room message set. All mutation happens on a
// single internal goroutine; Messages may be called from anywhere.
type View struct {
	roomID     string
	sweepEvery time.Duration
	now        func() time.Time
	logger     *slog.Logger

	sub     *broadcast.Subscription
	events  chan broadcast.Event
	queries chan chan []domain.Message
	done    chan struct{}
	closed  chan struct{}
	once    sync.Once

	// messages is owned by the run goroutine.
	messages map[string]domain.Message
}

// New opens a view on the room. The channel subscription is established
// before the history snapshot is read, so messages arriving during the
// seed are queued rather than lost; duplicates between the snapshot and
// the queue collapse by message ID.
func New(ctx context.Context, channel *broadcast.Channel, history HistoryProvider, roomID string, opts ...Option) (*View, error) {
	v := &View{
		roomID:     roomID,
		sweepEvery: 5 * time.Second,
		now:        time.Now,
		logger:     slog.Default().With("service", "roomview", "room_id", roomID),
		events:     make(chan broadcast.Event, 256),
		queries:    make(chan chan []domain.Message),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
		messages:   make(map[string]domain.Message),
	}
	for _, opt := range opts {
		opt(v)
	}

	sub, err := channel.Subscribe(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("opening view on %s: %w", roomID, err)
	}
	v.sub = sub
	sub.Bind(topics.EventNewMessage, v.enqueue)
	sub.Bind(topics.EventMessageExpired, v.enqueue)

	messages, err := history.History(ctx, roomID)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("seeding view on %s: %w", roomID, err)
	}

	go v.run(messages)
	return v, nil
}

// enqueue hands an event to the reconciliation goroutine. Events are
// dropped when the queue is full; the next sweep repairs any drift a
// dropped expiry push would otherwise cause.
func (v *View) enqueue(e broadcast.Event) {
	select {
	case v.events <- e:
	case <-v.done:
	default:
		v.logger.Warn("Event queue full, dropping", "event", e.Name)
	}
}

// run is the single goroutine that owns the message set.
func (v *View) run(seed []domain.Message) {
	defer close(v.closed)

	now := v.now()
	for _, msg := range seed {
		if !msg.Expired(now) {
			v.messages[msg.ID] = msg
		}
	}

	ticker := time.NewTicker(v.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case e := <-v.events:
			v.apply(e)
		case <-ticker.C:
			v.sweep()
		case reply := <-v.queries:
			reply <- v.current()
		case <-v.done:
			return
		}
	}
}

func (v *View) apply(e broadcast.Event) {
	switch e.Name {
	case topics.EventNewMessage:
		var msg domain.Message
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			v.logger.Warn("Dropping undecodable message event", "error", err)
			return
		}
		if msg.ID == "" || msg.Expired(v.now()) {
			return
		}
		// Seed and live feed overlap; last write for an ID wins.
		v.messages[msg.ID] = msg

	case topics.EventMessageExpired:
		var expired domain.MessageExpired
		if err := json.Unmarshal(e.Payload, &expired); err != nil {
			v.logger.Warn("Dropping undecodable expiry event", "error", err)
			return
		}
		delete(v.messages, expired.MessageID)
	}
}

// sweep prunes every message whose lifetime has elapsed, regardless of
// whether an expiry push was ever seen for it.
func (v *View) sweep() {
	now := v.now()
	for id, msg := range v.messages {
		if msg.Expired(now) {
			delete(v.messages, id)
		}
	}
}

// current copies the live set in chronological order. Runs on the run
// goroutine only. Messages past their lifetime are filtered even when
// the sweep has not caught them yet.
func (v *View) current() []domain.Message {
	now := v.now()
	out := make([]domain.Message, 0, len(v.messages))
	for _, msg := range v.messages {
		if !msg.Expired(now) {
			out = append(out, msg)
		}
	}
	slices.SortFunc(out, func(a, b domain.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Messages returns the room's current live messages in chronological
// order. Returns nil after Close.
func (v *View) Messages() []domain.Message {
	reply := make(chan []domain.Message, 1)
	select {
	case v.queries <- reply:
	case <-v.closed:
		return nil
	}
	select {
	case msgs := <-reply:
		return msgs
	case <-v.closed:
		return nil
	}
}

// Close stops the reconciliation loop and releases the channel
// subscription. Safe to call more than once.
func (v *View) Close() {
	v.once.Do(func() {
		close(v.done)
		v.sub.Close()
	})
	<-v.closed
}
