package events

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated       EventType = "request_created"
	EventRequestStatusChanged EventType = "request_status_changed"
	EventRequestAssigned      EventType = "request_assigned"
	EventRequestDeleted       EventType = "request_deleted"
)

// Event represents a domain event emitted by the lifecycle engine.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	RequestID    string      `json:"request_id"`
	TicketNumber string      `json:"ticket_number"`
	ActorID      string      `json:"actor_id"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// RequestCreatedPayload payload.
type RequestCreatedPayload struct {
	Kind           domain.RequestKind     `json:"kind"`
	OrganizationID string                 `json:"organization_id"`
	RequesterID    string                 `json:"requester_id"`
	Priority       domain.RequestPriority `json:"priority"`
	Title          string                 `json:"title"`
}

// RequestStatusChangedPayload payload.
type RequestStatusChangedPayload struct {
	RequesterID string               `json:"requester_id"`
	OldStatus   domain.RequestStatus `json:"old_status"`
	NewStatus   domain.RequestStatus `json:"new_status"`
	Reason      string               `json:"reason,omitempty"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	RequesterID string  `json:"requester_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// RequestDeletedPayload payload.
type RequestDeletedPayload struct {
	Kind domain.RequestKind `json:"kind"`
}
