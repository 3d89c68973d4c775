package domain

import "time"

// MessageKind classifies who authored a chat message.
type MessageKind string

const (
	MessageKindUser    MessageKind = "user"
	MessageKindSupport MessageKind = "support"
	MessageKindSystem  MessageKind = "system"
	MessageKindBot     MessageKind = "bot"
)

// ChatMessage is a single room-scoped message. The persisted copy exists
// only for ticket-scoped rooms; messages in personal rooms are transient.
type ChatMessage struct {
	ID          string
	RoomID      string
	TicketID    *string
	SenderID    *string
	SenderLabel string
	Body        string
	Kind        MessageKind
	CreatedAt   time.Time
}
