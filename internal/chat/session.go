package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/domain"
)

// Identity is the authenticated binding carried by a live connection.
type Identity struct {
	UserID         string
	Label          string
	Role           domain.UserRole
	OrganizationID *string
}

// Session is one live connection. The registry owns the session; the
// coordinator holds only its id inside room membership sets.
type Session struct {
	id       string
	identity Identity

	mu       sync.Mutex
	closed   bool
	outbound chan OutboundEvent
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Identity returns the authenticated binding.
func (s *Session) Identity() Identity { return s.identity }

// Outbound exposes the delivery channel consumed by the connection writer.
// The channel is closed when the session closes.
func (s *Session) Outbound() <-chan OutboundEvent { return s.outbound }

// enqueue delivers an event to this session's outbound queue. Delivery is
// best-effort: a closed session or a full queue drops the event.
func (s *Session) enqueue(ev OutboundEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.outbound <- ev:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}

// SessionObserver is notified after a session has been removed from the
// registry. The room coordinator uses it to drop memberships.
type SessionObserver interface {
	SessionClosed(sessionID string)
}

// Registry tracks authenticated identity per live connection.
type Registry struct {
	sendBuffer int

	mu       sync.RWMutex
	sessions map[string]*Session

	observer SessionObserver
}

// NewRegistry builds an empty registry. sendBuffer sizes each session's
// outbound queue.
func NewRegistry(sendBuffer int) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Registry{
		sendBuffer: sendBuffer,
		sessions:   make(map[string]*Session),
	}
}

// SetObserver registers the membership-cleanup hook. Must be called during
// wiring, before sessions open.
func (r *Registry) SetObserver(observer SessionObserver) {
	r.observer = observer
}

// Open registers a new session for the identity.
func (r *Registry) Open(identity Identity) *Session {
	s := &Session{
		id:       uuid.NewString(),
		identity: identity,
		outbound: make(chan OutboundEvent, r.sendBuffer),
	}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	return s
}

// Close tears down a session. Idempotent. Membership cleanup runs before the
// call returns, so no broadcast issued afterwards can target the session.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	if r.observer != nil {
		r.observer.SessionClosed(sessionID)
	}
}

// Lookup returns the identity bound to a session.
func (r *Registry) Lookup(sessionID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Identity{}, false
	}
	return s.identity, true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
