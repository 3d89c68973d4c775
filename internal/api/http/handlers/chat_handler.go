package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/chat"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// ChatHandler exposes the REST view of ticket-room messaging: history
// reads plus message submission for clients without a live connection.
type ChatHandler struct {
	requests *service.RequestService
	messages repository.ChatMessageRepository
	relay    *chat.Relay
}

// NewChatHandler constructs handler.
func NewChatHandler(requestService *service.RequestService, messages repository.ChatMessageRepository, relay *chat.Relay) *ChatHandler {
	return &ChatHandler{requests: requestService, messages: messages, relay: relay}
}

// Messages handles GET /api/support/chat/:id and
// GET /api/support/tickets/:id/messages. Visibility follows the ticket
// itself: whoever can read the ticket can read its room history.
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	request, err := h.requests.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}

	history, err := h.messages.ListByTicket(c.UserContext(), request.ID, c.QueryInt("limit", 200))
	if err != nil {
		return util.MapError(err)
	}
	return ok(c, dto.NewChatMessageResponses(history))
}

// Post handles POST /api/support/chat and
// POST /api/support/tickets/:id/messages. The message goes through the
// relay, so connected room members receive it live and the durable copy
// is written the same way as for websocket traffic.
func (h *ChatHandler) Post(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}

	var req dto.ChatMessageCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	ticketID := c.Params("id")
	if ticketID == "" {
		ticketID = req.TicketID
	}
	if ticketID == "" {
		return util.NewValidationError("ticketId is required", nil)
	}

	request, err := h.requests.Get(c.UserContext(), caller, ticketID)
	if err != nil {
		return err
	}

	identity := chat.Identity{
		UserID:         caller.ID,
		Label:          caller.FullName(),
		Role:           caller.Role,
		OrganizationID: caller.OrganizationID,
	}
	msg, err := h.relay.DeliverFrom(c.UserContext(), identity, chat.ChatMessagePayload{
		RoomID:  chat.TicketRoom(request.ID),
		Message: req.Message,
		Kind:    req.Kind,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewChatMessageResponse(msg))
}
