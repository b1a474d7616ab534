package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/ratelimit"
	"github.com/driftchat/drift/internal/store"
	"github.com/driftchat/drift/internal/topics"
)

// Service orchestrates the ephemeral message pipeline: validate, rate
// limit, sanitize, persist with TTL, publish, and schedule the expiry
// event. One submission makes exactly one store write, one counter
// increment, and up to two broadcast publishes.
type Service struct {
	store   store.Store
	limiter ratelimit.Limiter
	channel *broadcast.Channel

	ttl        time.Duration
	maxContent int

	logger *slog.Logger
}

// NewService wires the ingress pipeline.
func NewService(s store.Store, limiter ratelimit.Limiter, channel *broadcast.Channel, ttl time.Duration, maxContent int) *Service {
	return &Service{
		store:      s,
		limiter:    limiter,
		channel:    channel,
		ttl:        ttl,
		maxContent: maxContent,
		logger:     slog.Default().With("service", "chat"),
	}
}

// TTL returns the configured message lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// messagesKey is the store key for a room's message collection.
func messagesKey(roomID string) string {
	return "room:" + roomID + ":messages"
}

// newMessageID builds an identifier unique with overwhelming probability
// even under concurrent submissions to the same room: millisecond
// timestamp plus a random suffix. A collision would silently overwrite an
// existing message, so the suffix carries the weight here.
func newMessageID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Submit runs a plain text message through the full pipeline and returns
// its identifier.
func (s *Service) Submit(ctx context.Context, roomID, senderID, rawText string) (string, error) {
	return s.submit(ctx, roomID, senderID, domain.Message{
		Kind:    domain.KindText,
		Content: rawText,
	})
}

// SubmitReceipt submits a scanned-receipt message.
func (s *Service) SubmitReceipt(ctx context.Context, roomID, senderID string, payload domain.ReceiptPayload) (string, error) {
	return s.submit(ctx, roomID, senderID, domain.Message{
		Kind:    domain.KindReceipt,
		Receipt: &payload,
	})
}

// SubmitSplit submits a bill-split proposal message.
func (s *Service) SubmitSplit(ctx context.Context, roomID, senderID string, payload domain.SplitPayload) (string, error) {
	return s.submit(ctx, roomID, senderID, domain.Message{
		Kind:  domain.KindSplit,
		Split: &payload,
	})
}

// submit is the single pipeline behind every message kind.
func (s *Service) submit(ctx context.Context, roomID, senderID string, msg domain.Message) (string, error) {
	// Validation rejects partial input before any store or channel call.
	if roomID == "" {
		return "", fmt.Errorf("missing roomId: %w", domain.ErrValidation)
	}
	if senderID == "" {
		return "", fmt.Errorf("missing senderId: %w", domain.ErrValidation)
	}

	// The rate check records the attempt whether or not it is allowed, so
	// denied bursts keep the counter saturated for the rest of the window.
	allowed, err := s.limiter.Allow(ctx, senderID, roomID)
	if err != nil {
		return "", fmt.Errorf("rate check: %w", err)
	}
	if !allowed {
		return "", fmt.Errorf("sender %s in room %s: %w", senderID, roomID, domain.ErrRateLimited)
	}

	if msg.Kind == domain.KindText {
		msg.Content = s.sanitize(msg.Content)
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	msg.ID = newMessageID(now)
	msg.RoomID = roomID
	msg.SenderID = senderID
	msg.CreatedAt = now
	msg.ExpiresAt = now.Add(s.ttl)

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}

	// Persistence happens before publication: a client that receives the
	// live event can always backfill the message from a snapshot read.
	if err := s.store.HashSet(ctx, messagesKey(roomID), msg.ID, body, s.ttl); err != nil {
		s.logger.Error("Failed to persist message", "room_id", roomID, "error", err)
		return "", fmt.Errorf("persisting message: %w", domain.ErrStoreUnavailable)
	}

	// A publish failure after successful persistence does not fail the
	// submission: the message is in the store and late snapshot reads will
	// see it. Live subscribers miss the push, which is the documented
	// best-effort side of the delivery contract.
	if err := s.channel.Trigger(ctx, roomID, topics.EventNewMessage, msg); err != nil {
		s.logger.Error("Broadcast degraded: new-message publish failed",
			"room_id", roomID, "message_id", msg.ID, "error", err)
	}

	s.scheduleExpiry(roomID, msg.ID)

	return msg.ID, nil
}

// sanitize trims surrounding whitespace and truncates to the maximum
// content length, counted in runes.
func (s *Service) sanitize(text string) string {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > s.maxContent {
		text = string(runes[:s.maxContent])
	}
	return text
}

// scheduleExpiry arms a fire-once timer that publishes the message-expired
// event when the TTL elapses. This is a fast path only: the timer dies
// with the process, and subscribers' periodic sweeps remain the
// authoritative expiry mechanism.
func (s *Service) scheduleExpiry(roomID, messageID string) {
	time.AfterFunc(s.ttl, func() {
		err := s.channel.Trigger(context.Background(), roomID, topics.EventMessageExpired,
			domain.MessageExpired{MessageID: messageID})
		if err != nil {
			s.logger.Error("Failed to publish expiry event",
				"room_id", roomID, "message_id", messageID, "error", err)
		}
	})
}

// History returns the room's currently stored, non-expired messages in
// chronological order. Messages whose age already exceeds the TTL are
// filtered even if the store has not dropped them yet.
func (s *Service) History(ctx context.Context, roomID string) ([]domain.Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("missing roomId: %w", domain.ErrValidation)
	}

	fields, err := s.store.HashGetAll(ctx, messagesKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("reading room messages: %w", domain.ErrStoreUnavailable)
	}

	now := time.Now()
	messages := make([]domain.Message, 0, len(fields))
	for id, raw := range fields {
		var msg domain.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("Skipping undecodable stored message", "room_id", roomID, "message_id", id, "error", err)
			continue
		}
		messages = append(messages, msg)
	}

	messages = lo.Filter(messages, func(m domain.Message, _ int) bool {
		return !m.Expired(now)
	})
	slices.SortFunc(messages, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return messages, nil
}
