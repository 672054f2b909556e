package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// PartyCoordinator tracks watch-party rooms and broadcasts playback and chat to their members.
// Any member may drive playback; there is no admin check.
type PartyCoordinator struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Connection
	memberships map[string]map[string]struct{}
	logger      *zap.Logger
}

func NewPartyCoordinator(logger *zap.Logger) *PartyCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PartyCoordinator{
		rooms:       make(map[string]map[string]Connection),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger,
	}
}

// Join adds conn to roomID, creating the room on first join. Joining twice is a no-op.
func (p *PartyCoordinator) Join(roomID string, conn Connection) {
	if roomID == "" || conn == nil {
		return
	}
	handle := conn.ID()

	p.mu.Lock()
	members, ok := p.rooms[roomID]
	if !ok {
		members = make(map[string]Connection)
		p.rooms[roomID] = members
	}
	members[handle] = conn
	joined, ok := p.memberships[handle]
	if !ok {
		joined = make(map[string]struct{})
		p.memberships[handle] = joined
	}
	joined[roomID] = struct{}{}
	size := len(members)
	p.mu.Unlock()

	p.logger.Debug("party joined", zap.String("party_id", roomID), zap.String("handle", handle), zap.Int("members", size))
}

// Leave removes conn from roomID. Leaving a room the connection is not in is a no-op.
func (p *PartyCoordinator) Leave(roomID string, conn Connection) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	p.removeLocked(roomID, conn.ID())
	p.mu.Unlock()
}

// LeaveAll removes conn from every room it joined and returns those rooms.
func (p *PartyCoordinator) LeaveAll(conn Connection) []string {
	if conn == nil {
		return nil
	}
	handle := conn.ID()

	p.mu.Lock()
	defer p.mu.Unlock()
	joined := p.memberships[handle]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		p.removeLocked(roomID, handle)
	}
	return left
}

func (p *PartyCoordinator) removeLocked(roomID, handle string) {
	if members, ok := p.rooms[roomID]; ok {
		delete(members, handle)
		if len(members) == 0 {
			delete(p.rooms, roomID)
		}
	}
	if joined, ok := p.memberships[handle]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(p.memberships, handle)
		}
	}
}

// AdminSync pushes the sender's playback position to everyone else in the room.
// Position and play state are forwarded as given.
func (p *PartyCoordinator) AdminSync(roomID string, sender Connection, currentTime, isPlaying any) int {
	return p.broadcast(roomID, handleOf(sender), Message{
		Event: EventVideoSync,
		Data: Payload{
			"current_time": currentTime,
			"is_playing":   isPlaying,
		},
	})
}

// VideoStateChange pushes a player state transition to everyone else in the room.
func (p *PartyCoordinator) VideoStateChange(roomID string, sender Connection, state, currentTime, isPlaying any) int {
	return p.broadcast(roomID, handleOf(sender), Message{
		Event: EventVideoSync,
		Data: Payload{
			"current_time": currentTime,
			"is_playing":   isPlaying,
			"state":        state,
		},
	})
}

// RequestSync asks every member, the requester included, to publish its position.
func (p *PartyCoordinator) RequestSync(roomID string) int {
	return p.broadcast(roomID, "", Message{
		Event: EventSyncRequested,
		Data:  Payload{"party_id": roomID},
	})
}

// PartyMessage relays a chat message to every member including the sender.
func (p *PartyCoordinator) PartyMessage(roomID string, payload json.RawMessage) int {
	return p.broadcast(roomID, "", Message{Event: EventPartyMessage, Data: verbatim(payload)})
}

// PartyReaction relays a reaction to every member including the sender.
func (p *PartyCoordinator) PartyReaction(roomID string, payload json.RawMessage) int {
	return p.broadcast(roomID, "", Message{Event: EventPartyReaction, Data: verbatim(payload)})
}

// Members returns the number of connections in roomID.
func (p *PartyCoordinator) Members(roomID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms[roomID])
}

// Rooms returns the number of non-empty rooms.
func (p *PartyCoordinator) Rooms() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rooms)
}

// broadcast snapshots membership under the read lock and sends outside it.
func (p *PartyCoordinator) broadcast(roomID, exceptHandle string, message Message) int {
	p.mu.RLock()
	members := p.rooms[roomID]
	recipients := make([]Connection, 0, len(members))
	for handle, conn := range members {
		if handle == exceptHandle {
			continue
		}
		recipients = append(recipients, conn)
	}
	p.mu.RUnlock()

	delivered := 0
	for _, conn := range recipients {
		if conn.Send(message) {
			delivered++
		}
	}
	if delivered < len(recipients) {
		p.logger.Debug("party broadcast partially dropped",
			zap.String("party_id", roomID),
			zap.String("event", message.Event),
			zap.Int("recipients", len(recipients)),
			zap.Int("delivered", delivered))
	}
	return delivered
}

func handleOf(conn Connection) string {
	if conn == nil {
		return ""
	}
	return conn.ID()
}
