package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// RequestsHandler serves the lifecycle endpoints for one request kind. The
// same handler backs /api/mac-requests and /api/support/tickets.
type RequestsHandler struct {
	kind        domain.RequestKind
	requests    *service.RequestService
	assignments *service.AssignmentService
}

// NewRequestsHandler constructs a kind-bound handler.
func NewRequestsHandler(kind domain.RequestKind, requestService *service.RequestService, assignmentService *service.AssignmentService) *RequestsHandler {
	return &RequestsHandler{kind: kind, requests: requestService, assignments: assignmentService}
}

// Create handles POST.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.RequestCreateInput{
		Kind:            h.kind,
		OrganizationID:  req.OrganizationID,
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		AffectedSystems: req.AffectedSystems,
		Category:        req.Category,
		Tags:            req.Tags,
	}
	if req.RequestType != nil {
		requestType := domain.MACRequestType(*req.RequestType)
		input.RequestType = &requestType
	}

	request, err := h.requests.Create(c.UserContext(), caller, input)
	if err != nil {
		return err
	}
	return created(c, dto.NewRequestResponse(request))
}

// List handles GET.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	input, err := parseListQuery(c)
	if err != nil {
		return err
	}

	requests, err := h.requests.List(c.UserContext(), caller, h.kind, input)
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponses(requests))
}

// Stats handles GET /stats.
func (h *RequestsHandler) Stats(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	stats, err := h.requests.Stats(c.UserContext(), caller, h.kind, c.QueryInt("recent", 5))
	if err != nil {
		return err
	}
	return ok(c, dto.NewStatsResponse(stats))
}

// Get handles GET /:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	request, err := h.requests.Get(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponse(request))
}

// GetByNumber handles GET /number/:number.
func (h *RequestsHandler) GetByNumber(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	request, err := h.requests.GetByTicketNumber(c.UserContext(), caller, c.Params("number"))
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponse(request))
}

// Update handles PUT /:id.
func (h *RequestsHandler) Update(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.RequestUpdateInput{
		Title:               req.Title,
		Description:         req.Description,
		Notes:               req.Notes,
		Priority:            req.Priority,
		Status:              req.Status,
		AssigneeID:          req.AssigneeID,
		AffectedSystems:     req.AffectedSystems,
		Category:            req.Category,
		Tags:                req.Tags,
		Rating:              req.Rating,
		Feedback:            req.Feedback,
		EstimatedCompletion: req.EstimatedCompletion,
		CancellationReason:  req.CancellationReason,
	}
	if req.RequestType != nil {
		requestType := domain.MACRequestType(*req.RequestType)
		input.RequestType = &requestType
	}

	request, diff, err := h.requests.Update(c.UserContext(), caller, c.Params("id"), input)
	if err != nil {
		return err
	}
	return ok(c, dto.UpdateResultResponse{
		Request:  dto.NewRequestResponse(request),
		Applied:  diff.Applied,
		Rejected: diff.Rejected,
	})
}

// Delete handles DELETE /:id.
func (h *RequestsHandler) Delete(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	if err := h.requests.Delete(c.UserContext(), caller, c.Params("id")); err != nil {
		return err
	}
	return okMessage(c, "request deleted")
}

// Assign handles POST /:id/assign.
func (h *RequestsHandler) Assign(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil || req.AssigneeID == "" {
		return util.NewValidationError("assigneeId is required", nil)
	}

	request, err := h.assignments.Assign(c.UserContext(), caller, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponse(request))
}

// SelfAssign handles POST /:id/assign/self.
func (h *RequestsHandler) SelfAssign(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	request, err := h.assignments.SelfAssign(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponse(request))
}

// AutoAssign handles POST /:id/assign/auto.
func (h *RequestsHandler) AutoAssign(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	request, err := h.assignments.AutoAssign(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, dto.NewRequestResponse(request))
}

func parseListQuery(c *fiber.Ctx) (service.RequestListInput, error) {
	input := service.RequestListInput{}

	for _, raw := range splitQuery(c.Query("status")) {
		input.Statuses = append(input.Statuses, domain.RequestStatus(raw))
	}
	for _, raw := range splitQuery(c.Query("priority")) {
		priority, valid := domain.NormalizePriority(raw)
		if !valid {
			return input, util.NewValidationError("unknown priority", map[string]any{"priority": raw})
		}
		input.Priorities = append(input.Priorities, priority)
	}
	if assignee := c.Query("assigneeId"); assignee != "" {
		input.AssigneeID = &assignee
	}

	var err error
	if input.CreatedFrom, err = parseTimeQuery(c.Query("from")); err != nil {
		return input, err
	}
	if input.CreatedTo, err = parseTimeQuery(c.Query("to")); err != nil {
		return input, err
	}

	pageSize := c.QueryInt("pageSize", 20)
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	input.Limit = pageSize
	input.Offset = (page - 1) * pageSize
	return input, nil
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseTimeQuery(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, util.NewValidationError("timestamps must be RFC3339", map[string]any{"value": raw})
	}
	return &parsed, nil
}
