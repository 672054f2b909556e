package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	mu       sync.Mutex
	messages []Message
	full     bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) Send(message Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.messages = append(c.messages, message)
	return true
}

func (c *fakeConn) received() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *fakeConn) events() []string {
	messages := c.received()
	names := make([]string, 0, len(messages))
	for _, message := range messages {
		names = append(names, message.Event)
	}
	return names
}

func dataJSON(t *testing.T, message Message) string {
	t.Helper()
	encoded, err := json.Marshal(message.Data)
	require.NoError(t, err)
	return string(encoded)
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []presenceChange
}

func (o *recordingObserver) PresenceChanged(userID string, online bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, presenceChange{userID: userID, online: online})
}

func (o *recordingObserver) recorded() []presenceChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]presenceChange(nil), o.changes...)
}
