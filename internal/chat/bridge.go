package chat

import (
	"context"
	"fmt"

	"github.com/spec-kit/service-desk/internal/events"
)

// Bridge feeds lifecycle events into live rooms: status changes become
// system messages in the ticket room, and requester-facing notifications
// land in the requester's personal room.
type Bridge struct {
	relay       *Relay
	coordinator *Coordinator
}

// NewBridge subscribes the bridge to the dispatcher.
func NewBridge(dispatcher events.Dispatcher, relay *Relay, coordinator *Coordinator) *Bridge {
	b := &Bridge{relay: relay, coordinator: coordinator}
	dispatcher.Subscribe(events.EventRequestStatusChanged, b.onStatusChanged)
	dispatcher.Subscribe(events.EventRequestAssigned, b.onAssigned)
	return b
}

func (b *Bridge) onStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestStatusChangedPayload)
	if !ok {
		return nil
	}

	body := fmt.Sprintf("Ticket %s status changed from %s to %s", event.TicketNumber, payload.OldStatus, payload.NewStatus)
	if payload.Reason != "" {
		body += ": " + payload.Reason
	}
	b.relay.SystemMessage(ctx, TicketRoom(event.RequestID), body)

	b.coordinator.Broadcast(UserRoom(payload.RequesterID), OutboundEvent{
		Event: "request-updated",
		Data: map[string]any{
			"requestId":    event.RequestID,
			"ticketNumber": event.TicketNumber,
			"status":       payload.NewStatus,
		},
	})
	return nil
}

func (b *Bridge) onAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RequestAssignedPayload)
	if !ok {
		return nil
	}

	body := fmt.Sprintf("Ticket %s has been assigned to an agent", event.TicketNumber)
	if payload.AssigneeID == nil {
		body = fmt.Sprintf("Ticket %s is awaiting assignment", event.TicketNumber)
	}
	b.relay.SystemMessage(ctx, TicketRoom(event.RequestID), body)

	b.coordinator.Broadcast(UserRoom(payload.RequesterID), OutboundEvent{
		Event: "request-updated",
		Data: map[string]any{
			"requestId":    event.RequestID,
			"ticketNumber": event.TicketNumber,
			"assigneeId":   payload.AssigneeID,
		},
	})
	return nil
}
