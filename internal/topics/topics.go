// Package topics derives pub/sub topic names from room identifiers and
// names the events carried on them.
package topics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/driftchat/drift/internal/domain"
)

// Event names carried on a room topic.
const (
	EventNewMessage     = "new-message"
	EventMessageExpired = "message-expired"
)

const roomPrefix = "chat.room."

// unsafeChars matches everything outside the set allowed in a topic name.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

var validTopic = regexp.MustCompile(`^chat\.room\.[a-zA-Z0-9_-]+$`)

// SanitizeRoomID strips characters outside [a-zA-Z0-9_-] from a room
// identifier. Stripping alone is not injective: "a/b" and "a.b" both strip
// to "ab", so the result is only ever used together with the hash suffix
// Room appends.
func SanitizeRoomID(roomID string) string {
	return unsafeChars.ReplaceAllString(roomID, "")
}

// Room returns the topic name for a room. Identifiers that are already
// within the safe character set map to a readable topic. Identifiers that
// needed sanitizing get a short hash of the raw identifier appended, so two
// distinct raw identifiers can never share a topic and leak events across
// rooms.
func Room(roomID string) string {
	sanitized := SanitizeRoomID(roomID)
	if sanitized == roomID {
		return roomPrefix + sanitized
	}
	sum := sha256.Sum256([]byte(roomID))
	return fmt.Sprintf("%s%s-%s", roomPrefix, sanitized, hex.EncodeToString(sum[:4]))
}

// Validate rejects a channel name that is not a well-formed room topic,
// before any store or broadcast call is made with it.
func Validate(topic string) error {
	if !validTopic.MatchString(topic) {
		return fmt.Errorf("topic %q: %w", topic, domain.ErrMalformedChannel)
	}
	return nil
}
