package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	hub   *Hub
	alice *fakeConn
	bob   *fakeConn
}

func newHubFixture(t *testing.T) hubFixture {
	t.Helper()
	fixture := hubFixture{
		hub:   NewHub(HubConfig{}),
		alice: newFakeConn("handle-alice"),
		bob:   newFakeConn("handle-bob"),
	}
	fixture.send(t, fixture.alice, "alice", EventRegisterUser, `{"userId":"alice"}`)
	fixture.send(t, fixture.bob, "bob", EventRegisterUser, `{"userId":"bob"}`)
	return fixture
}

func (f hubFixture) send(t *testing.T, conn *fakeConn, subject, event, data string) {
	t.Helper()
	err := f.hub.Handle(Client{Conn: conn, Subject: subject}, Frame{Event: event, Data: json.RawMessage(data)})
	require.NoError(t, err)
}

func TestHubRegisterUserUsesTokenSubject(t *testing.T) {
	hub := NewHub(HubConfig{})
	conn := newFakeConn("h1")

	require.NoError(t, hub.Handle(Client{Conn: conn, Subject: "alice"}, Frame{Event: EventRegisterUser, Data: json.RawMessage(`{"userId":"mallory"}`)}))
	assert.False(t, hub.Registry().Online("mallory"))
	assert.False(t, hub.Registry().Online("alice"))

	require.NoError(t, hub.Handle(Client{Conn: conn, Subject: "alice"}, Frame{Event: EventRegisterUser}))
	assert.True(t, hub.Registry().Online("alice"))
}

func TestHubRegisterUserAcceptsNumericIdentifier(t *testing.T) {
	hub := NewHub(HubConfig{})
	conn := newFakeConn("h1")

	require.NoError(t, hub.Handle(Client{Conn: conn, Subject: "17"}, Frame{Event: EventRegisterUser, Data: json.RawMessage(`{"userId":17}`)}))
	assert.True(t, hub.Registry().Online("17"))
}

func TestHubCallSignaling(t *testing.T) {
	fixture := newHubFixture(t)

	fixture.send(t, fixture.alice, "alice", EventCallUser, `{"targetUserId":"bob","callType":"video","caller":{"id":"alice","username":"Alice"}}`)
	fixture.send(t, fixture.bob, "bob", EventCallAccepted, `{"targetUserId":"alice"}`)
	fixture.send(t, fixture.alice, "alice", EventWebRTCOffer, `{"target":"bob","offer":{"sdp":"v=0","type":"offer"}}`)
	fixture.send(t, fixture.bob, "bob", EventWebRTCAnswer, `{"target":"alice","answer":{"sdp":"v=0","type":"answer"}}`)
	fixture.send(t, fixture.bob, "bob", EventICECandidate, `{"target":"alice","candidate":{"candidate":"c1"}}`)
	fixture.send(t, fixture.alice, "alice", EventCallEnded, `{"target":"bob"}`)

	bobMessages := fixture.bob.received()
	require.Len(t, bobMessages, 3)
	assert.Equal(t, EventIncomingCall, bobMessages[0].Event)
	assert.JSONEq(t, `{"caller":{"id":"alice","username":"Alice"},"callType":"video"}`, dataJSON(t, bobMessages[0]))
	assert.Equal(t, EventWebRTCOffer, bobMessages[1].Event)
	assert.JSONEq(t, `{"offer":{"sdp":"v=0","type":"offer"},"caller":"handle-alice"}`, dataJSON(t, bobMessages[1]))
	assert.Equal(t, EventCallEnded, bobMessages[2].Event)
	assert.JSONEq(t, `{}`, dataJSON(t, bobMessages[2]))

	assert.Equal(t, []string{EventCallAccepted, EventWebRTCAnswer, EventICECandidate}, fixture.alice.events())
	aliceMessages := fixture.alice.received()
	assert.JSONEq(t, `{"answer":{"sdp":"v=0","type":"answer"}}`, dataJSON(t, aliceMessages[1]))
	assert.JSONEq(t, `{"candidate":{"candidate":"c1"}}`, dataJSON(t, aliceMessages[2]))
}

func TestHubCallToAbsentUserIsSilent(t *testing.T) {
	fixture := newHubFixture(t)

	fixture.send(t, fixture.alice, "alice", EventCallUser, `{"targetUserId":"carol","callType":"audio"}`)
	fixture.send(t, fixture.alice, "alice", EventCallDeclined, `{"targetUserId":"carol"}`)

	assert.Empty(t, fixture.alice.received())
	assert.Empty(t, fixture.bob.received())
}

func TestHubDirectMessagesAndTyping(t *testing.T) {
	fixture := newHubFixture(t)
	message := `{"recipient_id":2,"sender":{"id":1},"content":"hey","timestamp":"now"}`
	fixture.hub.Registry().Register("2", fixture.bob)

	fixture.send(t, fixture.alice, "alice", EventSendMessage, message)
	fixture.send(t, fixture.alice, "alice", EventTyping, `{"recipient_id":"2","sender_username":"alice","is_typing":true}`)

	received := fixture.bob.received()
	require.Len(t, received, 2)
	assert.Equal(t, EventReceiveMessage, received[0].Event)
	assert.JSONEq(t, message, dataJSON(t, received[0]))
	assert.Equal(t, EventUserTyping, received[1].Event)
	assert.JSONEq(t, `{"sender_username":"alice","is_typing":true}`, dataJSON(t, received[1]))
}

func TestHubForwardsLooselyTypedFieldsVerbatim(t *testing.T) {
	fixture := newHubFixture(t)
	fixture.hub.Registry().Register("2", fixture.bob)
	fixture.send(t, fixture.alice, "alice", EventJoinParty, `{"party_id":"movie"}`)
	fixture.send(t, fixture.bob, "bob", EventJoinParty, `{"party_id":"movie"}`)

	fixture.send(t, fixture.alice, "alice", EventTyping, `{"recipient_id":"2","sender_username":"alice","is_typing":"true"}`)
	fixture.send(t, fixture.alice, "alice", EventAdminSync, `{"party_id":"movie","current_time":"12.5","is_playing":1}`)
	fixture.send(t, fixture.alice, "alice", EventVideoStateChange, `{"party_id":"movie","state":1,"current_time":null}`)

	received := fixture.bob.received()
	require.Len(t, received, 3)
	assert.JSONEq(t, `{"sender_username":"alice","is_typing":"true"}`, dataJSON(t, received[0]))
	assert.JSONEq(t, `{"current_time":"12.5","is_playing":1}`, dataJSON(t, received[1]))
	assert.JSONEq(t, `{"current_time":null,"is_playing":null,"state":1}`, dataJSON(t, received[2]))
}

func TestHubPartyFlow(t *testing.T) {
	fixture := newHubFixture(t)

	fixture.send(t, fixture.alice, "alice", EventJoinParty, `{"party_id":5,"user_id":"alice"}`)
	fixture.send(t, fixture.bob, "bob", EventJoinParty, `{"party_id":"5","user_id":"bob"}`)
	assert.Equal(t, 2, fixture.hub.Parties().Members("5"))

	fixture.send(t, fixture.alice, "alice", EventAdminSync, `{"party_id":5,"current_time":3.5,"is_playing":true}`)
	fixture.send(t, fixture.bob, "bob", EventVideoStateChange, `{"party_id":5,"state":1,"current_time":4,"is_playing":true}`)
	fixture.send(t, fixture.bob, "bob", EventRequestSync, `{"party_id":5}`)
	fixture.send(t, fixture.alice, "alice", EventPartyMessage, `{"party_id":5,"message":"popcorn"}`)
	fixture.send(t, fixture.alice, "alice", EventPartyReaction, `{"party_id":5,"reaction":"😂"}`)

	assert.Equal(t, []string{EventVideoSync, EventSyncRequested, EventPartyMessage, EventPartyReaction}, fixture.bob.events())
	assert.Equal(t, []string{EventVideoSync, EventSyncRequested, EventPartyMessage, EventPartyReaction}, fixture.alice.events())
	assert.JSONEq(t, `{"current_time":4,"is_playing":true,"state":1}`, dataJSON(t, fixture.alice.received()[0]))
	assert.JSONEq(t, `{"party_id":"5"}`, dataJSON(t, fixture.alice.received()[1]))

	fixture.send(t, fixture.bob, "bob", EventLeaveParty, `{"party_id":5,"user_id":"bob"}`)
	assert.Equal(t, 1, fixture.hub.Parties().Members("5"))
}

func TestHubDisconnectClearsPresenceAndRooms(t *testing.T) {
	fixture := newHubFixture(t)
	fixture.send(t, fixture.alice, "alice", EventJoinParty, `{"party_id":"movie"}`)

	fixture.hub.Disconnect(Client{Conn: fixture.alice, Subject: "alice"})

	assert.False(t, fixture.hub.Registry().Online("alice"))
	assert.Equal(t, 0, fixture.hub.Parties().Rooms())

	fixture.send(t, fixture.bob, "bob", EventCallUser, `{"targetUserId":"alice"}`)
	assert.Empty(t, fixture.alice.received())
}

func TestHubRejectsUnknownAndMalformedFrames(t *testing.T) {
	hub := NewHub(HubConfig{})
	client := Client{Conn: newFakeConn("h1"), Subject: "alice"}

	assert.ErrorIs(t, hub.Handle(client, Frame{Event: "launch_rockets"}), ErrUnknownEvent)
	assert.ErrorIs(t, hub.Handle(client, Frame{Event: EventCallUser, Data: json.RawMessage(`[1,2]`)}), ErrMalformedPayload)
	assert.ErrorIs(t, hub.Handle(client, Frame{Event: EventJoinParty, Data: json.RawMessage(`{}`)}), ErrMalformedPayload)
	assert.ErrorIs(t, hub.Handle(client, Frame{Event: EventTyping, Data: json.RawMessage(`{"recipient_id":true}`)}), ErrMalformedPayload)
}

func TestRelayForward(t *testing.T) {
	registry := NewRegistry(nil, nil)
	relay := NewRelay(registry, nil)
	target := newFakeConn("h1")
	registry.Register("bob", target)

	assert.True(t, relay.Forward("bob", EventIncomingCall, Payload{}))
	assert.False(t, relay.Forward("carol", EventIncomingCall, Payload{}))
	assert.False(t, relay.Forward("", EventIncomingCall, Payload{}))

	target.full = true
	assert.False(t, relay.Forward("bob", EventIncomingCall, Payload{}))
	assert.Len(t, target.received(), 1)
}

func TestIdentifierDecoding(t *testing.T) {
	cases := map[string]Identifier{
		`"abc"`: "abc",
		`" x "`: "x",
		`42`:    "42",
		`4.5`:   "4.5",
		`null`:  "",
		`""`:    "",
	}
	for input, want := range cases {
		var id Identifier
		require.NoError(t, json.Unmarshal([]byte(input), &id), input)
		assert.Equal(t, want, id, input)
	}

	var id Identifier
	assert.Error(t, json.Unmarshal([]byte(`{"nested":1}`), &id))
}
