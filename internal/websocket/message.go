package websocket

import (
	"encoding/json"

	"github.com/driftchat/drift/internal/domain"
)

// Frame events the server pushes beyond the room's broadcast events.
const (
	// EventSnapshot carries the room's current messages, sent once on join.
	EventSnapshot = "snapshot"
	// EventError reports a rejected inbound frame to its sender.
	EventError = "error"
)

// Frame is an outbound WebSocket frame: a named event with a JSON body.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// inboundFrame is a message submission received from a client. Kind
// defaults to text.
type inboundFrame struct {
	Kind    string                 `json:"kind"`
	Text    string                 `json:"text"`
	Receipt *domain.ReceiptPayload `json:"receipt"`
	Split   *domain.SplitPayload   `json:"split"`
}

// errorFrame is the body of an EventError frame.
type errorFrame struct {
	Message string `json:"message"`
}
