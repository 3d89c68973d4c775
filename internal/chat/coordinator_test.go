package chat

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/observability"
)

func newTestCoordinator() (*Registry, *Coordinator) {
	registry := NewRegistry(256)
	coordinator := NewCoordinator(zap.NewNop(), observability.NewMetrics())
	registry.SetObserver(coordinator)
	return registry, coordinator
}

func openSession(r *Registry, userID string) *Session {
	return r.Open(Identity{UserID: userID, Label: userID, Role: domain.RoleUser})
}

func drain(s *Session) []OutboundEvent {
	var events []OutboundEvent
	for {
		select {
		case ev, ok := <-s.Outbound():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestBroadcastReachesAllMembersIncludingSender(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	b := openSession(registry, "user-b")
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(b, TicketRoom("t1"), nil)

	delivered := coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage, Data: "hello"})
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	for _, s := range []*Session{a, b} {
		events := drain(s)
		if len(events) != 1 || events[0].Event != EventNewMessage {
			t.Errorf("session %s events = %+v", s.Identity().UserID, events)
		}
	}
}

func TestTypingExcludesOriginator(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	b := openSession(registry, "user-b")
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(b, TicketRoom("t1"), nil)

	delivered := coordinator.NotifyTyping(a.ID(), TicketRoom("t1"), "user-a", true)
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if events := drain(a); len(events) != 0 {
		t.Errorf("originator received its own typing event: %+v", events)
	}
	events := drain(b)
	if len(events) != 1 || events[0].Event != EventUserTyping {
		t.Fatalf("peer events = %+v", events)
	}
	payload, ok := events[0].Data.(UserTypingPayload)
	if !ok || payload.UserID != "user-a" || !payload.IsTyping {
		t.Errorf("payload = %+v", events[0].Data)
	}
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, TicketRoom("t1"), nil)
	if coordinator.RoomCount() == 0 {
		t.Fatal("room not created on join")
	}

	coordinator.Leave(a.ID(), TicketRoom("t1"))
	if got := coordinator.RoomCount(); got != 0 {
		t.Errorf("RoomCount = %d after last leave, want 0", got)
	}
	if delivered := coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage}); delivered != 0 {
		t.Errorf("broadcast into destroyed room delivered %d", delivered)
	}
}

func TestSingleTicketRoomPerSession(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(a, TicketRoom("t2"), nil)

	if room, _ := coordinator.TicketRoomOf(a.ID()); room != TicketRoom("t2") {
		t.Errorf("ticket room = %q, want %q", room, TicketRoom("t2"))
	}
	if delivered := coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage}); delivered != 0 {
		t.Errorf("still receiving in abandoned ticket room: %d", delivered)
	}
	if delivered := coordinator.Broadcast(TicketRoom("t2"), OutboundEvent{Event: EventNewMessage}); delivered != 1 {
		t.Errorf("not receiving in current ticket room: %d", delivered)
	}
}

func TestPersonalRoomSurvivesTicketRoomSwitch(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, UserRoom("user-a"), nil)
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(a, TicketRoom("t2"), nil)

	if delivered := coordinator.Broadcast(UserRoom("user-a"), OutboundEvent{Event: EventNewMessage}); delivered != 1 {
		t.Errorf("personal room lost on ticket switch: delivered %d", delivered)
	}
}

func TestCloseRemovesAllMemberships(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	b := openSession(registry, "user-b")
	coordinator.Join(a, UserRoom("user-a"), nil)
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(b, TicketRoom("t1"), nil)

	registry.Close(a.ID())

	if delivered := coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage}); delivered != 1 {
		t.Errorf("delivered = %d after close, want 1 (only the surviving member)", delivered)
	}
	if delivered := coordinator.Broadcast(UserRoom("user-a"), OutboundEvent{Event: EventNewMessage}); delivered != 0 {
		t.Errorf("personal room delivered %d after close, want 0", delivered)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, TicketRoom("t1"), nil)

	registry.Close(a.ID())
	registry.Close(a.ID())

	if got := registry.Count(); got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
}

func TestPreloadDeliveredOnlyToJoiner(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, TicketRoom("t1"), nil)

	b := openSession(registry, "user-b")
	preload := []OutboundEvent{
		{Event: EventNewMessage, Data: "old-1"},
		{Event: EventNewMessage, Data: "old-2"},
	}
	coordinator.Join(b, TicketRoom("t1"), preload)

	if events := drain(a); len(events) != 0 {
		t.Errorf("existing member received preload: %+v", events)
	}
	events := drain(b)
	if len(events) != 2 || events[0].Data != "old-1" || events[1].Data != "old-2" {
		t.Errorf("joiner preload = %+v", events)
	}
}

func TestPreloadOrderedBeforeSubsequentBroadcasts(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	coordinator.Join(a, TicketRoom("t1"), []OutboundEvent{{Event: EventNewMessage, Data: "history"}})
	coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage, Data: "live"})

	events := drain(a)
	if len(events) != 2 || events[0].Data != "history" || events[1].Data != "live" {
		t.Errorf("events = %+v, want history before live", events)
	}
}

func TestConcurrentJoinsAndBroadcasts(t *testing.T) {
	registry, coordinator := newTestCoordinator()
	const sessions = 32

	var wg sync.WaitGroup
	members := make([]*Session, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := openSession(registry, fmt.Sprintf("user-%d", i))
			members[i] = s
			coordinator.Join(s, TicketRoom("t1"), nil)
			coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{Event: EventNewMessage, Data: i})
		}(i)
	}
	wg.Wait()

	if got := len(coordinator.Members(TicketRoom("t1"))); got != sessions {
		t.Fatalf("members = %d, want %d", got, sessions)
	}

	// Every member that was joined at broadcast time got the same room
	// ordering; at minimum each session received its own echo.
	for i, s := range members {
		if events := drain(s); len(events) == 0 {
			t.Errorf("session %d received no events", i)
		}
	}
}

func TestBroadcastOrderConsistentAcrossMembers(t *testing.T) {
	registry, coordinator := newTestCoordinator()

	a := openSession(registry, "user-a")
	b := openSession(registry, "user-b")
	coordinator.Join(a, TicketRoom("t1"), nil)
	coordinator.Join(b, TicketRoom("t1"), nil)

	const messages = 20
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < messages; j++ {
				coordinator.Broadcast(TicketRoom("t1"), OutboundEvent{
					Event: EventNewMessage,
					Data:  fmt.Sprintf("%d-%d", worker, j),
				})
			}
		}(i)
	}
	wg.Wait()

	eventsA := drain(a)
	eventsB := drain(b)
	if len(eventsA) != len(eventsB) {
		t.Fatalf("member event counts differ: %d vs %d", len(eventsA), len(eventsB))
	}
	for i := range eventsA {
		if eventsA[i].Data != eventsB[i].Data {
			t.Fatalf("order diverges at %d: %v vs %v", i, eventsA[i].Data, eventsB[i].Data)
		}
	}
}

func TestEnqueueAfterCloseDropsEvent(t *testing.T) {
	registry, _ := newTestCoordinator()

	a := openSession(registry, "user-a")
	registry.Close(a.ID())

	if a.enqueue(OutboundEvent{Event: EventNewMessage}) {
		t.Error("enqueue succeeded on closed session")
	}
}
