package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// PresenceObserver is told about every identity that goes online or offline.
// Calls arrive in mutation order while the registry lock is held, so implementations must not block
// or call back into the registry.
type PresenceObserver interface {
	PresenceChanged(userID string, online bool)
}

type presenceChange struct {
	userID string
	online bool
}

// Registry maps user identities to their current connection.
// Each identity holds at most one connection and the last registration wins.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]Connection
	byHandle map[string]string
	observer PresenceObserver
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger, observer PresenceObserver) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byUser:   make(map[string]Connection),
		byHandle: make(map[string]string),
		observer: observer,
		logger:   logger,
	}
}

// Register points userID at conn, replacing whatever connection held it before.
// The displaced connection is not closed; it simply stops being reachable by lookup.
func (r *Registry) Register(userID string, conn Connection) {
	if userID == "" || conn == nil {
		return
	}
	handle := conn.ID()

	r.mu.Lock()
	var changes []presenceChange
	if previous, ok := r.byUser[userID]; ok && previous.ID() != handle {
		delete(r.byHandle, previous.ID())
		r.logger.Debug("presence overwritten",
			zap.String("user_id", userID),
			zap.String("previous_handle", previous.ID()),
			zap.String("handle", handle))
	}
	if formerUser, ok := r.byHandle[handle]; ok && formerUser != userID {
		delete(r.byUser, formerUser)
		changes = append(changes, presenceChange{userID: formerUser, online: false})
	}
	r.byUser[userID] = conn
	r.byHandle[handle] = userID
	changes = append(changes, presenceChange{userID: userID, online: true})
	r.notify(changes)
	r.mu.Unlock()

	r.logger.Debug("presence registered", zap.String("user_id", userID), zap.String("handle", handle))
}

// Lookup returns the connection currently registered for userID.
func (r *Registry) Lookup(userID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Unregister removes the entry owned by conn and returns the identity it served.
// A handle that owns no entry, including one displaced by a later registration, is ignored.
func (r *Registry) Unregister(conn Connection) (string, bool) {
	if conn == nil {
		return "", false
	}
	handle := conn.ID()

	r.mu.Lock()
	userID, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byHandle, handle)
	if current, exists := r.byUser[userID]; exists && current.ID() == handle {
		delete(r.byUser, userID)
	}
	r.notify([]presenceChange{{userID: userID, online: false}})
	r.mu.Unlock()

	r.logger.Debug("presence removed", zap.String("user_id", userID), zap.String("handle", handle))
	return userID, true
}

// Online reports whether userID has a registered connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Count returns the number of registered identities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// notify must be called with r.mu held for writing.
func (r *Registry) notify(changes []presenceChange) {
	if r.observer == nil {
		return
	}
	for _, change := range changes {
		r.observer.PresenceChanged(change.userID, change.online)
	}
}
