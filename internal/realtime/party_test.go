package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartyAdminSyncExcludesSender(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	admin := newFakeConn("admin")
	viewer := newFakeConn("viewer")
	parties.Join("42", admin)
	parties.Join("42", viewer)

	delivered := parties.AdminSync("42", admin, 12.5, true)

	assert.Equal(t, 1, delivered)
	assert.Empty(t, admin.received())
	require.Len(t, viewer.received(), 1)
	message := viewer.received()[0]
	assert.Equal(t, EventVideoSync, message.Event)
	assert.JSONEq(t, `{"current_time":12.5,"is_playing":true}`, dataJSON(t, message))
}

func TestPartyVideoStateChangeExcludesSender(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	sender := newFakeConn("a")
	other := newFakeConn("b")
	parties.Join("room", sender)
	parties.Join("room", other)

	parties.VideoStateChange("room", sender, json.RawMessage(`2`), 30, false)

	assert.Empty(t, sender.received())
	require.Len(t, other.received(), 1)
	assert.JSONEq(t, `{"current_time":30,"is_playing":false,"state":2}`, dataJSON(t, other.received()[0]))
}

func TestPartyMessageAndReactionIncludeSender(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	sender := newFakeConn("a")
	other := newFakeConn("b")
	parties.Join("room", sender)
	parties.Join("room", other)

	payload := json.RawMessage(`{"party_id":"room","text":"hi"}`)
	assert.Equal(t, 2, parties.PartyMessage("room", payload))
	assert.Equal(t, 2, parties.PartyReaction("room", json.RawMessage(`{"party_id":"room","emoji":"🔥"}`)))

	for _, conn := range []*fakeConn{sender, other} {
		assert.Equal(t, []string{EventPartyMessage, EventPartyReaction}, conn.events())
		assert.JSONEq(t, string(payload), dataJSON(t, conn.received()[0]))
	}
}

func TestPartyRequestSyncReachesEveryone(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	first := newFakeConn("a")
	second := newFakeConn("b")
	parties.Join("7", first)
	parties.Join("7", second)

	assert.Equal(t, 2, parties.RequestSync("7"))
	assert.JSONEq(t, `{"party_id":"7"}`, dataJSON(t, first.received()[0]))
	assert.Equal(t, []string{EventSyncRequested}, second.events())
}

func TestPartyRoomLifecycle(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	conn := newFakeConn("a")

	parties.Join("room", conn)
	parties.Join("room", conn)
	assert.Equal(t, 1, parties.Members("room"))
	assert.Equal(t, 1, parties.Rooms())

	parties.Leave("other", conn)
	parties.Leave("room", conn)
	assert.Equal(t, 0, parties.Members("room"))
	assert.Equal(t, 0, parties.Rooms(), "empty rooms must vanish")

	parties.Leave("room", conn)
	assert.Equal(t, 0, parties.RequestSync("room"), "unknown room broadcasts to nobody")
}

func TestPartyLeaveAllDropsEveryMembership(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	leaving := newFakeConn("a")
	staying := newFakeConn("b")
	parties.Join("one", leaving)
	parties.Join("two", leaving)
	parties.Join("two", staying)

	left := parties.LeaveAll(leaving)

	assert.ElementsMatch(t, []string{"one", "two"}, left)
	assert.Equal(t, 1, parties.Rooms())
	assert.Equal(t, 1, parties.Members("two"))
	assert.Empty(t, parties.LeaveAll(leaving))
}

func TestPartyBroadcastCountsOnlyDeliveries(t *testing.T) {
	parties := NewPartyCoordinator(nil)
	healthy := newFakeConn("a")
	congested := newFakeConn("b")
	congested.full = true
	parties.Join("room", healthy)
	parties.Join("room", congested)

	assert.Equal(t, 1, parties.PartyMessage("room", nil))
	assert.JSONEq(t, `{}`, dataJSON(t, healthy.received()[0]))
}
