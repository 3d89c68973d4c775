package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/pkg/util"
)

const maxMessageBytes = 4096

// Relay turns inbound chat-message events into broadcasts plus, for
// ticket-scoped rooms, a durable copy. Persistence failure degrades to
// broadcast-only delivery rather than rejecting the message.
type Relay struct {
	coordinator *Coordinator
	messages    repository.ChatMessageRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	history     int
	now         func() time.Time
}

// NewRelay builds a relay. historyLimit caps how many stored messages
// Hydrate replays on ticket-room join.
func NewRelay(coordinator *Coordinator, messages repository.ChatMessageRepository, logger *zap.Logger, metrics *observability.Metrics, historyLimit int) *Relay {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Relay{
		coordinator: coordinator,
		messages:    messages,
		logger:      logger,
		metrics:     metrics,
		history:     historyLimit,
		now:         time.Now,
	}
}

// WithClock overrides the timestamp source. Test hook.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// Deliver validates, classifies, broadcasts, and (for ticket rooms)
// persists one inbound message from the session. The sender receives its
// own echo through the room broadcast.
func (r *Relay) Deliver(ctx context.Context, s *Session, payload ChatMessagePayload) (*domain.ChatMessage, error) {
	return r.DeliverFrom(ctx, s.Identity(), payload)
}

// DeliverFrom is Deliver for senders without a live session, such as the
// HTTP boundary. The author still sees the message in any room it has a
// connection joined to.
func (r *Relay) DeliverFrom(ctx context.Context, identity Identity, payload ChatMessagePayload) (*domain.ChatMessage, error) {
	body := strings.TrimSpace(payload.Message)
	if payload.RoomID == "" || body == "" {
		return nil, util.NewValidationError("roomId and message are required", nil)
	}
	if len(body) > maxMessageBytes {
		return nil, util.NewValidationError("message exceeds maximum length", nil)
	}

	label := strings.TrimSpace(payload.Sender)
	if label == "" {
		label = identity.Label
	}

	senderID := identity.UserID
	msg := &domain.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      payload.RoomID,
		SenderID:    &senderID,
		SenderLabel: label,
		Body:        body,
		Kind:        classifyKind(payload.Kind, identity.Role),
		CreatedAt:   r.now().UTC(),
	}
	if ticketID, ok := TicketIDFromRoom(payload.RoomID); ok {
		msg.TicketID = &ticketID
	}

	r.coordinator.Broadcast(payload.RoomID, newMessageEvent(msg))

	if msg.TicketID != nil {
		if err := r.messages.Create(ctx, msg); err != nil {
			r.metrics.RecordDegradedPersistence()
			r.logger.Warn("chat message delivered without durable copy",
				zap.String("room_id", msg.RoomID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return msg, nil
}

// SystemMessage broadcasts a server-authored message into a room and, for
// ticket rooms, persists it. Used by the lifecycle bridge.
func (r *Relay) SystemMessage(ctx context.Context, roomID, body string) {
	msg := &domain.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		SenderLabel: "system",
		Body:        body,
		Kind:        domain.MessageKindSystem,
		CreatedAt:   r.now().UTC(),
	}
	if ticketID, ok := TicketIDFromRoom(roomID); ok {
		msg.TicketID = &ticketID
	}

	r.coordinator.Broadcast(roomID, newMessageEvent(msg))

	if msg.TicketID != nil {
		if err := r.messages.Create(ctx, msg); err != nil {
			r.metrics.RecordDegradedPersistence()
			r.logger.Warn("system message delivered without durable copy",
				zap.String("room_id", roomID),
				zap.Error(err))
		}
	}
}

// Hydrate loads the stored history of a ticket room as replayable events,
// oldest first. A transient store failure is retried once; a room with no
// history yields an empty slice.
func (r *Relay) Hydrate(ctx context.Context, roomID string) ([]OutboundEvent, error) {
	ticketID, ok := TicketIDFromRoom(roomID)
	if !ok {
		return nil, nil
	}

	history, err := r.messages.ListByTicket(ctx, ticketID, r.history)
	if err != nil {
		history, err = r.messages.ListByTicket(ctx, ticketID, r.history)
	}
	if err != nil {
		return nil, util.NewDependencyUnavailable("chat history unavailable", err)
	}

	events := make([]OutboundEvent, 0, len(history))
	for i := range history {
		events = append(events, newMessageEvent(&history[i]))
	}
	return events, nil
}

// classifyKind resolves the stored message kind. Explicit bot marking is
// honored; otherwise the sender's role decides between user and support.
func classifyKind(requested string, role domain.UserRole) domain.MessageKind {
	if domain.MessageKind(requested) == domain.MessageKindBot {
		return domain.MessageKindBot
	}
	if role.Elevated() {
		return domain.MessageKindSupport
	}
	return domain.MessageKindUser
}
