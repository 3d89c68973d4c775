package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// SystemHandler exposes the status page: a public listing plus
// admin-only maintenance of the entries.
type SystemHandler struct {
	statuses *service.SystemStatusService
}

// NewSystemHandler constructs handler.
func NewSystemHandler(statusService *service.SystemStatusService) *SystemHandler {
	return &SystemHandler{statuses: statusService}
}

// List handles GET /api/system/status. No authentication required.
func (h *SystemHandler) List(c *fiber.Ctx) error {
	statuses, err := h.statuses.ListStatuses(c.UserContext())
	if err != nil {
		return err
	}
	result := make([]dto.SystemStatusResponse, 0, len(statuses))
	for i := range statuses {
		result = append(result, dto.NewSystemStatusResponse(&statuses[i]))
	}
	return ok(c, result)
}

// Create handles POST /api/system/status.
func (h *SystemHandler) Create(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.SystemStatusCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	status, err := h.statuses.CreateStatus(c.UserContext(), caller, service.StatusCreateInput{
		ServiceName: req.ServiceName,
		Status:      domain.ServiceState(req.Status),
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewSystemStatusResponse(status))
}

// Update handles PUT /api/system/status/:id.
func (h *SystemHandler) Update(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.SystemStatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.StatusUpdateInput{
		Description:           req.Description,
		AffectedOrganizations: req.AffectedOrganizations,
		Uptime:                req.Uptime,
	}
	if req.Status != nil {
		state := domain.ServiceState(*req.Status)
		input.Status = &state
	}

	status, err := h.statuses.UpdateStatus(c.UserContext(), caller, c.Params("id"), input)
	if err != nil {
		return err
	}
	return ok(c, dto.NewSystemStatusResponse(status))
}
