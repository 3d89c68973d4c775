package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// ChatMessageResponse is the REST view of a stored room message.
type ChatMessageResponse struct {
	ID        string             `json:"id"`
	RoomID    string             `json:"roomId"`
	TicketID  *string            `json:"ticketId"`
	SenderID  *string            `json:"senderId"`
	Sender    string             `json:"sender"`
	Message   string             `json:"message"`
	Kind      domain.MessageKind `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
}

// ChatMessageCreateRequest files a ticket-room message over REST.
type ChatMessageCreateRequest struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
	Kind     string `json:"kind"`
}

// NewChatMessageResponse maps one stored message.
func NewChatMessageResponse(msg *domain.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		TicketID:  msg.TicketID,
		SenderID:  msg.SenderID,
		Sender:    msg.SenderLabel,
		Message:   msg.Body,
		Kind:      msg.Kind,
		Timestamp: msg.CreatedAt,
	}
}

// NewChatMessageResponses maps stored messages.
func NewChatMessageResponses(msgs []domain.ChatMessage) []ChatMessageResponse {
	result := make([]ChatMessageResponse, 0, len(msgs))
	for i := range msgs {
		result = append(result, NewChatMessageResponse(&msgs[i]))
	}
	return result
}
