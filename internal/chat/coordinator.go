package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/observability"
)

// room is one broadcast group. Each room owns its mutex, so fan-out in one
// room never blocks joins or broadcasts in another.
type room struct {
	id      string
	mu      sync.Mutex
	members map[string]*Session
}

// Coordinator maintains room membership and routes join/leave/broadcast/
// typing events. Rooms are ephemeral: created on first join, destroyed when
// the last member leaves. Locks cover only in-memory index mutation; all
// I/O (history fetch, persistence) happens outside them.
type Coordinator struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{}
	ticketRooms map[string]string
}

// NewCoordinator builds an empty coordinator.
func NewCoordinator(logger *zap.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		logger:      logger,
		metrics:     metrics,
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
		ticketRooms: make(map[string]string),
	}
}

// Join adds the session to the room, creating the room on first join. A
// session holds at most one ticket room: joining a second ticket room
// implicitly leaves the first. preload events (hydrated history) are
// delivered to the joining session only, ahead of any broadcast issued
// after the join.
func (c *Coordinator) Join(s *Session, roomID string, preload []OutboundEvent) {
	if roomID == "" {
		return
	}

	c.mu.Lock()
	if IsTicketRoom(roomID) {
		if current, ok := c.ticketRooms[s.id]; ok && current != roomID {
			c.leaveLocked(s.id, current)
		}
		c.ticketRooms[s.id] = roomID
	}

	rm, ok := c.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]*Session)}
		c.rooms[roomID] = rm
	}
	if c.memberships[s.id] == nil {
		c.memberships[s.id] = make(map[string]struct{})
	}
	c.memberships[s.id][roomID] = struct{}{}

	rm.mu.Lock()
	rm.members[s.id] = s
	for _, ev := range preload {
		s.enqueue(ev)
	}
	rm.mu.Unlock()
	c.mu.Unlock()

	c.logger.Debug("session joined room",
		zap.String("session_id", s.id),
		zap.String("room_id", roomID))
}

// Leave removes the session from the room and destroys the room when it
// becomes empty.
func (c *Coordinator) Leave(sessionID, roomID string) {
	c.mu.Lock()
	c.leaveLocked(sessionID, roomID)
	c.mu.Unlock()
}

// leaveLocked requires c.mu held.
func (c *Coordinator) leaveLocked(sessionID, roomID string) {
	rm, ok := c.rooms[roomID]
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.members, sessionID)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if members := c.memberships[sessionID]; members != nil {
		delete(members, roomID)
		if len(members) == 0 {
			delete(c.memberships, sessionID)
		}
	}
	if c.ticketRooms[sessionID] == roomID {
		delete(c.ticketRooms, sessionID)
	}
	if empty {
		delete(c.rooms, roomID)
	}
}

// SessionClosed removes the session from every room it belonged to. Called
// by the registry while tearing the session down: once this returns, no
// later broadcast can target the session.
func (c *Coordinator) SessionClosed(sessionID string) {
	c.mu.Lock()
	for roomID := range c.memberships[sessionID] {
		c.leaveLocked(sessionID, roomID)
	}
	delete(c.memberships, sessionID)
	delete(c.ticketRooms, sessionID)
	c.mu.Unlock()
}

// Broadcast delivers the event to every session currently joined to the
// room, sender included. Enqueueing happens under the room lock, which
// keeps per-room delivery order identical for all members.
func (c *Coordinator) Broadcast(roomID string, ev OutboundEvent) int {
	return c.fanOut(roomID, ev, "")
}

// NotifyTyping relays a typing edge to every joined session except the
// originator.
func (c *Coordinator) NotifyTyping(sessionID, roomID string, userID string, isTyping bool) int {
	ev := OutboundEvent{
		Event: EventUserTyping,
		Data:  UserTypingPayload{UserID: userID, IsTyping: isTyping},
	}
	return c.fanOut(roomID, ev, sessionID)
}

func (c *Coordinator) fanOut(roomID string, ev OutboundEvent, excludeSessionID string) int {
	c.mu.RLock()
	rm := c.rooms[roomID]
	c.mu.RUnlock()
	if rm == nil {
		return 0
	}

	delivered := 0
	rm.mu.Lock()
	for id, member := range rm.members {
		if id == excludeSessionID {
			continue
		}
		if member.enqueue(ev) {
			delivered++
		}
	}
	rm.mu.Unlock()

	c.metrics.RecordBroadcast(ev.Event, delivered)
	return delivered
}

// Members returns the session ids currently joined to the room.
func (c *Coordinator) Members(roomID string) []string {
	c.mu.RLock()
	rm := c.rooms[roomID]
	c.mu.RUnlock()
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

// TicketRoomOf returns the ticket room the session is currently joined to.
func (c *Coordinator) TicketRoomOf(sessionID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	roomID, ok := c.ticketRooms[sessionID]
	return roomID, ok
}

// RoomCount returns the number of live rooms.
func (c *Coordinator) RoomCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}
