package realtime

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Client is the connection an inbound frame arrived on plus the identity its token proved.
type Client struct {
	Conn    Connection
	Subject string
}

type handlerFunc func(h *Hub, client Client, data json.RawMessage) error

// HubConfig wires the hub to its collaborators. Nil collaborators are created with defaults.
type HubConfig struct {
	Registry *Registry
	Relay    *Relay
	Parties  *PartyCoordinator
	Logger   *zap.Logger
}

// Hub turns each inbound frame into exactly one registry, relay or party action.
type Hub struct {
	registry *Registry
	relay    *Relay
	parties  *PartyCoordinator
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry(logger, nil)
	}
	relay := cfg.Relay
	if relay == nil {
		relay = NewRelay(registry, logger)
	}
	parties := cfg.Parties
	if parties == nil {
		parties = NewPartyCoordinator(logger)
	}
	return &Hub{
		registry: registry,
		relay:    relay,
		parties:  parties,
		logger:   logger,
		handlers: map[string]handlerFunc{
			EventRegisterUser:     handleRegisterUser,
			EventCallUser:         handleCallUser,
			EventCallAccepted:     handleCallAnswer(EventCallAccepted),
			EventCallDeclined:     handleCallAnswer(EventCallDeclined),
			EventCallEnded:        handleCallEnded,
			EventWebRTCOffer:      handleWebRTCOffer,
			EventWebRTCAnswer:     handleWebRTCAnswer,
			EventICECandidate:     handleICECandidate,
			EventSendMessage:      handleSendMessage,
			EventTyping:           handleTyping,
			EventJoinParty:        handleJoinParty,
			EventLeaveParty:       handleLeaveParty,
			EventAdminSync:        handleAdminSync,
			EventVideoStateChange: handleVideoStateChange,
			EventRequestSync:      handleRequestSync,
			EventPartyMessage:     handlePartyBroadcast(EventPartyMessage),
			EventPartyReaction:    handlePartyBroadcast(EventPartyReaction),
		},
	}
}

// Registry exposes the presence registry for probes.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Parties exposes the party coordinator for probes.
func (h *Hub) Parties() *PartyCoordinator {
	return h.parties
}

// Connect records a new transport session. Presence starts only with register_user.
func (h *Hub) Connect(client Client) {
	h.logger.Info("realtime client connected",
		zap.String("handle", client.Conn.ID()),
		zap.String("subject", client.Subject))
}

// Disconnect drops the session's presence entry and room memberships.
func (h *Hub) Disconnect(client Client) {
	userID, registered := h.registry.Unregister(client.Conn)
	rooms := h.parties.LeaveAll(client.Conn)
	fields := []zap.Field{
		zap.String("handle", client.Conn.ID()),
		zap.Int("rooms_left", len(rooms)),
	}
	if registered {
		fields = append(fields, zap.String("user_id", userID))
	}
	h.logger.Info("realtime client disconnected", fields...)
}

// Handle dispatches one inbound frame.
func (h *Hub) Handle(client Client, frame Frame) error {
	handler, ok := h.handlers[frame.Event]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
	return handler(h, client, frame.Data)
}

type registerPayload struct {
	UserID Identifier `json:"userId"`
}

func handleRegisterUser(h *Hub, client Client, data json.RawMessage) error {
	var payload registerPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	if client.Subject == "" {
		h.logger.Warn("register_user ignored", zap.String("reason", "anonymous_connection"))
		return nil
	}
	if payload.UserID != "" && payload.UserID.String() != client.Subject {
		h.logger.Warn("register_user ignored",
			zap.String("reason", "identity_mismatch"),
			zap.String("subject", client.Subject),
			zap.String("requested", payload.UserID.String()))
		return nil
	}
	h.registry.Register(client.Subject, client.Conn)
	return nil
}

type callPayload struct {
	TargetUserID Identifier      `json:"targetUserId"`
	CallType     json.RawMessage `json:"callType"`
	Caller       json.RawMessage `json:"caller"`
}

func handleCallUser(h *Hub, _ Client, data json.RawMessage) error {
	var payload callPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.TargetUserID.String(), EventIncomingCall, Payload{
		"caller":   payload.Caller,
		"callType": payload.CallType,
	})
	return nil
}

func handleCallAnswer(event string) handlerFunc {
	return func(h *Hub, _ Client, data json.RawMessage) error {
		var payload callPayload
		if err := decodePayload(data, &payload); err != nil {
			return err
		}
		h.relay.Forward(payload.TargetUserID.String(), event, Payload{})
		return nil
	}
}

type negotiationPayload struct {
	Target    Identifier      `json:"target"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

func handleCallEnded(h *Hub, _ Client, data json.RawMessage) error {
	var payload negotiationPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.Target.String(), EventCallEnded, Payload{})
	return nil
}

func handleWebRTCOffer(h *Hub, client Client, data json.RawMessage) error {
	var payload negotiationPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.Target.String(), EventWebRTCOffer, Payload{
		"offer":  payload.Offer,
		"caller": client.Conn.ID(),
	})
	return nil
}

func handleWebRTCAnswer(h *Hub, _ Client, data json.RawMessage) error {
	var payload negotiationPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.Target.String(), EventWebRTCAnswer, Payload{"answer": payload.Answer})
	return nil
}

func handleICECandidate(h *Hub, _ Client, data json.RawMessage) error {
	var payload negotiationPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.Target.String(), EventICECandidate, Payload{"candidate": payload.Candidate})
	return nil
}

type directPayload struct {
	RecipientID    Identifier      `json:"recipient_id"`
	SenderUsername json.RawMessage `json:"sender_username"`
	IsTyping       json.RawMessage `json:"is_typing"`
}

func handleSendMessage(h *Hub, _ Client, data json.RawMessage) error {
	var payload directPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.RecipientID.String(), EventReceiveMessage, verbatim(data))
	return nil
}

func handleTyping(h *Hub, _ Client, data json.RawMessage) error {
	var payload directPayload
	if err := decodePayload(data, &payload); err != nil {
		return err
	}
	h.relay.Forward(payload.RecipientID.String(), EventUserTyping, Payload{
		"sender_username": payload.SenderUsername,
		"is_typing":       payload.IsTyping,
	})
	return nil
}

type partyPayload struct {
	PartyID     Identifier      `json:"party_id"`
	CurrentTime json.RawMessage `json:"current_time"`
	IsPlaying   json.RawMessage `json:"is_playing"`
	State       json.RawMessage `json:"state"`
}

func decodeParty(data json.RawMessage) (partyPayload, error) {
	var payload partyPayload
	if err := decodePayload(data, &payload); err != nil {
		return partyPayload{}, err
	}
	if payload.PartyID == "" {
		return partyPayload{}, fmt.Errorf("%w: party_id is required", ErrMalformedPayload)
	}
	return payload, nil
}

func handleJoinParty(h *Hub, client Client, data json.RawMessage) error {
	payload, err := decodeParty(data)
	if err != nil {
		return err
	}
	h.parties.Join(payload.PartyID.String(), client.Conn)
	return nil
}

func handleLeaveParty(h *Hub, client Client, data json.RawMessage) error {
	payload, err := decodeParty(data)
	if err != nil {
		return err
	}
	h.parties.Leave(payload.PartyID.String(), client.Conn)
	return nil
}

func handleAdminSync(h *Hub, client Client, data json.RawMessage) error {
	payload, err := decodeParty(data)
	if err != nil {
		return err
	}
	h.parties.AdminSync(payload.PartyID.String(), client.Conn, payload.CurrentTime, payload.IsPlaying)
	return nil
}

func handleVideoStateChange(h *Hub, client Client, data json.RawMessage) error {
	payload, err := decodeParty(data)
	if err != nil {
		return err
	}
	h.parties.VideoStateChange(payload.PartyID.String(), client.Conn, payload.State, payload.CurrentTime, payload.IsPlaying)
	return nil
}

func handleRequestSync(h *Hub, _ Client, data json.RawMessage) error {
	payload, err := decodeParty(data)
	if err != nil {
		return err
	}
	h.parties.RequestSync(payload.PartyID.String())
	return nil
}

func handlePartyBroadcast(event string) handlerFunc {
	return func(h *Hub, _ Client, data json.RawMessage) error {
		payload, err := decodeParty(data)
		if err != nil {
			return err
		}
		if event == EventPartyReaction {
			h.parties.PartyReaction(payload.PartyID.String(), data)
			return nil
		}
		h.parties.PartyMessage(payload.PartyID.String(), data)
		return nil
	}
}
