package domain

import (
	"fmt"
	"time"
)

// Kind identifies the shape of a message's payload. The set is closed:
// adding a kind means adding a typed payload and extending every switch
// that dispatches on it.
type Kind string

const (
	KindText    Kind = "text"
	KindReceipt Kind = "receipt"
	KindSplit   Kind = "split"
)

// Message is a single ephemeral chat message. Messages are immutable once
// created and are removed from the store automatically when their TTL
// elapses. Exactly one payload field matching Kind is populated.
type Message struct {
	ID        string          `json:"messageId"`
	RoomID    string          `json:"roomId"`
	SenderID  string          `json:"senderId"`
	Kind      Kind            `json:"kind"`
	Content   string          `json:"content,omitempty"`
	Receipt   *ReceiptPayload `json:"receipt,omitempty"`
	Split     *SplitPayload   `json:"split,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ReceiptPayload is the structured payload for a scanned-receipt message.
// Amounts are in minor units (cents) to avoid floating point drift.
type ReceiptPayload struct {
	Merchant   string        `json:"merchant"`
	Currency   string        `json:"currency"`
	TotalCents int64         `json:"totalCents"`
	Items      []ReceiptItem `json:"items,omitempty"`
}

// ReceiptItem is one line on a receipt.
type ReceiptItem struct {
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
}

// SplitPayload is the structured payload for a bill-split proposal.
// Shares maps participant IDs to their owed amount in minor units.
type SplitPayload struct {
	Currency   string           `json:"currency"`
	TotalCents int64            `json:"totalCents"`
	Shares     map[string]int64 `json:"shares"`
}

// Expired reports whether the message's lifetime has elapsed at the given
// instant. Views use this both when seeding from a snapshot and during the
// periodic sweep, so a message disappears even if its expiry event is lost.
func (m Message) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Validate checks the kind/payload pairing. Every kind in the closed set is
// handled explicitly; anything else is ErrUnknownKind.
func (m Message) Validate() error {
	switch m.Kind {
	case KindText:
		if m.Content == "" {
			return fmt.Errorf("text message: %w", ErrEmptyMessage)
		}
	case KindReceipt:
		if m.Receipt == nil {
			return fmt.Errorf("receipt message missing payload: %w", ErrValidation)
		}
		if m.Receipt.TotalCents <= 0 || m.Receipt.Currency == "" {
			return fmt.Errorf("receipt payload incomplete: %w", ErrValidation)
		}
	case KindSplit:
		if m.Split == nil {
			return fmt.Errorf("split message missing payload: %w", ErrValidation)
		}
		if m.Split.TotalCents <= 0 || len(m.Split.Shares) == 0 {
			return fmt.Errorf("split payload incomplete: %w", ErrValidation)
		}
	default:
		return fmt.Errorf("kind %q: %w", m.Kind, ErrUnknownKind)
	}
	return nil
}

// MessageExpired is the event payload published when a message's TTL
// elapses. Subscribers remove the matching ID from their local view.
type MessageExpired struct {
	MessageID string `json:"messageId"`
}
