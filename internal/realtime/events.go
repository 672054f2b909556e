// Package realtime routes websocket events between live connections: presence,
// point-to-point call signaling and watch-party rooms.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names.
const (
	EventRegisterUser     = "register_user"
	EventCallUser         = "call_user"
	EventCallAccepted     = "call_accepted"
	EventCallDeclined     = "call_declined"
	EventCallEnded        = "call_ended"
	EventWebRTCOffer      = "webrtc_offer"
	EventWebRTCAnswer     = "webrtc_answer"
	EventICECandidate     = "ice_candidate"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventJoinParty        = "join_party"
	EventLeaveParty       = "leave_party"
	EventAdminSync        = "admin_sync"
	EventVideoStateChange = "video_state_change"
	EventRequestSync      = "request_sync"
	EventPartyMessage     = "party_message"
	EventPartyReaction    = "party_reaction"
)

// Outbound event names that differ from their inbound counterpart.
const (
	EventIncomingCall   = "incoming_call"
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventVideoSync      = "video_sync"
	EventSyncRequested  = "sync_requested"
)

var (
	// ErrUnknownEvent indicates an inbound frame named an event the hub does not handle.
	ErrUnknownEvent = errors.New("realtime: unknown event")
	// ErrMalformedPayload indicates an inbound frame whose data could not be decoded.
	ErrMalformedPayload = errors.New("realtime: malformed payload")
)

// Frame is the wire envelope for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound event addressed to one connection.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Payload is a JSON object built by the server.
type Payload map[string]any

// Connection is a live transport session that can receive events.
// Send must not block; it reports false when the message was dropped.
type Connection interface {
	ID() string
	Send(message Message) bool
}

// Identifier accepts a JSON string or number and keeps its textual form.
type Identifier string

func (id *Identifier) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*id = Identifier(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = Identifier(number.String())
	return nil
}

func (id Identifier) String() string {
	return string(id)
}

func decodePayload(data json.RawMessage, target any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// verbatim returns the inbound data as an outbound payload, defaulting to an empty object.
func verbatim(data json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("{}")
	}
	return data
}
