package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/chat"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/pubsub"
	"github.com/driftchat/drift/internal/ratelimit"
	"github.com/driftchat/drift/internal/store"
	"github.com/driftchat/drift/internal/topics"
)

type fixture struct {
	store   *store.Badger
	channel *broadcast.Channel
	svc     *chat.Service
}

type fixtureOpts struct {
	ttl     time.Duration
	ceiling int
	window  time.Duration
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	if opts.ttl == 0 {
		opts.ttl = time.Minute
	}
	if opts.ceiling == 0 {
		opts.ceiling = 10
	}
	if opts.window == 0 {
		opts.window = time.Minute
	}

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bridge := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })

	channel := broadcast.New(bridge, bridge)
	limiter := ratelimit.NewStoreLimiter(s, opts.ceiling, opts.window)
	svc := chat.NewService(s, limiter, channel, opts.ttl, 1000)

	return &fixture{store: s, channel: channel, svc: svc}
}

// listen binds the named events on a room and funnels them into a channel.
func (f *fixture) listen(t *testing.T, roomID string, events ...string) <-chan broadcast.Event {
	t.Helper()
	sub, err := f.channel.Subscribe(context.Background(), roomID)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	got := make(chan broadcast.Event, 16)
	for _, e := range events {
		sub.Bind(e, func(e broadcast.Event) { got <- e })
	}
	return got
}

func waitFor(t *testing.T, ch <-chan broadcast.Event, timeout time.Duration) broadcast.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return broadcast.Event{}
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("returns an id and persists the message", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})

		id, err := f.svc.Submit(ctx, "r1", "u1", "hello")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, id, history[0].ID)
		assert.Equal(t, "u1", history[0].SenderID)
		assert.Equal(t, "hello", history[0].Content)
		assert.Equal(t, domain.KindText, history[0].Kind)
	})

	t.Run("ids are never reused within a room", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{ceiling: 100})

		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			id, err := f.svc.Submit(ctx, "r1", "u1", "hello")
			require.NoError(t, err)
			require.False(t, seen[id], "id %s returned twice", id)
			seen[id] = true
		}
	})

	t.Run("trims and stores the sanitized content", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})

		id, err := f.svc.Submit(ctx, "r1", "u1", "  hello  ")
		require.NoError(t, err)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, id, history[0].ID)
		assert.Equal(t, "hello", history[0].Content)
	})

	t.Run("truncates content to the maximum length", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})

		_, err := f.svc.Submit(ctx, "r1", "u1", strings.Repeat("x", 1500))
		require.NoError(t, err)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Len(t, history[0].Content, 1000)
	})

	t.Run("missing fields are validation errors", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})

		_, err := f.svc.Submit(ctx, "", "u1", "hello")
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.svc.Submit(ctx, "r1", "", "hello")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("whitespace-only content is rejected with no side effects", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		events := f.listen(t, "r1", topics.EventNewMessage)

		_, err := f.svc.Submit(ctx, "r1", "u1", "   \n\t  ")
		assert.ErrorIs(t, err, domain.ErrEmptyMessage)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, history, "nothing may reach the store")

		select {
		case e := <-events:
			t.Fatalf("unexpected publish %q", e.Name)
		case <-time.After(200 * time.Millisecond):
		}
	})
}

func TestSubmitRateLimiting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{ceiling: 10})

	for i := 0; i < 10; i++ {
		_, err := f.svc.Submit(ctx, "r1", "u1", "hello")
		require.NoError(t, err, "message %d should be accepted", i+1)
	}

	_, err := f.svc.Submit(ctx, "r1", "u1", "hello")
	require.ErrorIs(t, err, domain.ErrRateLimited, "11th message should be denied")

	// The denial is scoped to the (sender, room) pair.
	_, err = f.svc.Submit(ctx, "r1", "u2", "hello")
	assert.NoError(t, err)
	_, err = f.svc.Submit(ctx, "r2", "u1", "hello")
	assert.NoError(t, err)

	history, err := f.svc.History(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, history, 11, "10 from u1 plus 1 from u2")
}

func TestSubmitPublishesLiveEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})
	events := f.listen(t, "r1", topics.EventNewMessage)

	id, err := f.svc.Submit(ctx, "r1", "u1", "hello")
	require.NoError(t, err)

	e := waitFor(t, events, 2*time.Second)
	require.Equal(t, topics.EventNewMessage, e.Name)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(e.Payload, &msg))
	assert.Equal(t, id, msg.ID, "live event carries the id returned by submit")
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.ExpiresAt.IsZero())
}

func TestSubmitSchedulesExpiryEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{ttl: 150 * time.Millisecond})
	events := f.listen(t, "r1", topics.EventMessageExpired)

	start := time.Now()
	id, err := f.svc.Submit(ctx, "r1", "u1", "hello")
	require.NoError(t, err)

	e := waitFor(t, events, 2*time.Second)
	elapsed := time.Since(start)

	var expired domain.MessageExpired
	require.NoError(t, json.Unmarshal(e.Payload, &expired))
	assert.Equal(t, id, expired.MessageID)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond, "expiry must not fire early")
}

func TestSubmitSurvivesPublishFailure(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bridge := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })

	channel := broadcast.New(failingPublisher{}, bridge)
	limiter := ratelimit.NewStoreLimiter(s, 10, time.Minute)
	svc := chat.NewService(s, limiter, channel, time.Minute, 1000)

	// Persistence succeeded, so the submission succeeds even though no
	// live subscriber will see the push.
	id, err := svc.Submit(ctx, "r1", "u1", "hello")
	require.NoError(t, err)

	history, err := svc.History(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
}

func TestSubmitStoreOutage(t *testing.T) {
	ctx := context.Background()

	bridge := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })
	channel := broadcast.New(bridge, bridge)

	// Limiter works, persistence fails.
	svc := chat.NewService(downStore{}, allowAll{}, channel, time.Minute, 1000)

	_, err := svc.Submit(ctx, "r1", "u1", "hello")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = svc.History(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestSubmitTypedKinds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	t.Run("receipt round trip", func(t *testing.T) {
		payload := domain.ReceiptPayload{
			Merchant:   "Cafe Luna",
			Currency:   "USD",
			TotalCents: 4250,
			Items:      []domain.ReceiptItem{{Label: "espresso", AmountCents: 450}},
		}
		id, err := f.svc.SubmitReceipt(ctx, "r1", "u1", payload)
		require.NoError(t, err)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		msg, found := findMessage(history, id)
		require.True(t, found)
		assert.Equal(t, domain.KindReceipt, msg.Kind)
		require.NotNil(t, msg.Receipt)
		assert.Equal(t, int64(4250), msg.Receipt.TotalCents)
	})

	t.Run("split round trip", func(t *testing.T) {
		payload := domain.SplitPayload{
			Currency:   "USD",
			TotalCents: 4250,
			Shares:     map[string]int64{"u1": 2125, "u2": 2125},
		}
		id, err := f.svc.SubmitSplit(ctx, "r1", "u1", payload)
		require.NoError(t, err)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		msg, found := findMessage(history, id)
		require.True(t, found)
		assert.Equal(t, domain.KindSplit, msg.Kind)
		require.NotNil(t, msg.Split)
		assert.Len(t, msg.Split.Shares, 2)
	})

	t.Run("incomplete payloads are rejected", func(t *testing.T) {
		_, err := f.svc.SubmitReceipt(ctx, "r1", "u1", domain.ReceiptPayload{})
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.svc.SubmitSplit(ctx, "r1", "u1", domain.SplitPayload{TotalCents: 100})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("sorted chronologically", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{ceiling: 100})

		var ids []string
		for _, text := range []string{"first", "second", "third"} {
			id, err := f.svc.Submit(ctx, "r1", "u1", text)
			require.NoError(t, err)
			ids = append(ids, id)
			time.Sleep(5 * time.Millisecond)
		}

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		for i, msg := range history {
			assert.Equal(t, ids[i], msg.ID)
		}
	})

	t.Run("messages vanish after the ttl", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{ttl: 150 * time.Millisecond})

		_, err := f.svc.Submit(ctx, "r1", "u1", "hello")
		require.NoError(t, err)

		history, err := f.svc.History(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, history, 1, "visible before the ttl elapses")

		time.Sleep(200 * time.Millisecond)
		history, err = f.svc.History(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, history, "absent after the ttl elapses")
	})

	t.Run("unknown room is empty, not an error", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		history, err := f.svc.History(ctx, "nobody-here")
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func findMessage(messages []domain.Message, id string) (domain.Message, bool) {
	for _, m := range messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

// failingPublisher simulates an unreachable broadcast service.
type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, pubsub.Message) error {
	return errors.New("channel unreachable")
}
func (failingPublisher) Close() error { return nil }

// allowAll is a limiter that never denies.
type allowAll struct{}

func (allowAll) Allow(context.Context, string, string) (bool, error) { return true, nil }

// downStore fails every operation.
type downStore struct{}

var errDown = errors.New("connection refused")

func (downStore) Set(context.Context, string, []byte, time.Duration) error { return errDown }
func (downStore) Get(context.Context, string) ([]byte, error)              { return nil, errDown }
func (downStore) HashSet(context.Context, string, string, []byte, time.Duration) error {
	return errDown
}
func (downStore) HashGetAll(context.Context, string) (map[string][]byte, error) {
	return nil, errDown
}
func (downStore) Expire(context.Context, string, time.Duration) error { return errDown }
func (downStore) Increment(context.Context, string) (int64, error)    { return 0, errDown }
func (downStore) Close() error                                        { return nil }
