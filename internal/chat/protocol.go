package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// Inbound event names understood by the gateway.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventChatMessage = "chat-message"
	EventTyping      = "typing"
)

// Outbound event names emitted to clients.
const (
	EventNewMessage = "new-message"
	EventUserTyping = "user-typing"
	EventError      = "error"
)

// InboundEvent is the wire frame received from a client.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is the wire frame sent to a client.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ChatMessagePayload carries an inbound chat-message event.
type ChatMessagePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
	Sender  string `json:"sender"`
	Kind    string `json:"kind,omitempty"`
}

// TypingPayload carries an inbound typing event. The coordinator relays both
// edges faithfully; staleness after one second of silence is a client-side
// debounce contract.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// NewMessagePayload carries an outbound new-message event.
type NewMessagePayload struct {
	ID        string             `json:"id"`
	Message   string             `json:"message"`
	Sender    string             `json:"sender"`
	Timestamp time.Time          `json:"timestamp"`
	Kind      domain.MessageKind `json:"kind"`
}

// UserTypingPayload carries an outbound user-typing event.
type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorPayload carries an outbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	userRoomPrefix   = "user-"
	ticketRoomPrefix = "ticket-"
)

// UserRoom returns the personal-notification room id for a user.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// TicketRoom returns the room id scoped to a ticket.
func TicketRoom(ticketID string) string {
	return ticketRoomPrefix + ticketID
}

// TicketIDFromRoom extracts the ticket id from a ticket-scoped room id.
func TicketIDFromRoom(roomID string) (string, bool) {
	id, ok := strings.CutPrefix(roomID, ticketRoomPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// IsTicketRoom reports whether the room id is ticket-scoped.
func IsTicketRoom(roomID string) bool {
	_, ok := TicketIDFromRoom(roomID)
	return ok
}

func newMessageEvent(msg *domain.ChatMessage) OutboundEvent {
	return OutboundEvent{
		Event: EventNewMessage,
		Data: NewMessagePayload{
			ID:        msg.ID,
			Message:   msg.Body,
			Sender:    msg.SenderLabel,
			Timestamp: msg.CreatedAt,
			Kind:      msg.Kind,
		},
	}
}
