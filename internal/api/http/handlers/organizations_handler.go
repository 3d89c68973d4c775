package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// OrganizationsHandler exposes tenant administration endpoints.
type OrganizationsHandler struct {
	orgs *service.OrganizationService
}

// NewOrganizationsHandler constructs handler.
func NewOrganizationsHandler(orgService *service.OrganizationService) *OrganizationsHandler {
	return &OrganizationsHandler{orgs: orgService}
}

// Create handles POST /api/organizations.
func (h *OrganizationsHandler) Create(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.OrganizationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	org, err := h.orgs.CreateOrganization(c.UserContext(), caller, req.Name, req.Code)
	if err != nil {
		return err
	}
	return created(c, dto.NewOrganizationResponse(org))
}

// List handles GET /api/organizations.
func (h *OrganizationsHandler) List(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	organizations, err := h.orgs.ListOrganizations(c.UserContext(), caller)
	if err != nil {
		return err
	}
	result := make([]dto.OrganizationResponse, 0, len(organizations))
	for i := range organizations {
		result = append(result, dto.NewOrganizationResponse(&organizations[i]))
	}
	return ok(c, result)
}

// Get handles GET /api/organizations/:id.
func (h *OrganizationsHandler) Get(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	org, err := h.orgs.GetOrganization(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return ok(c, dto.NewOrganizationResponse(org))
}

// Update handles PUT /api/organizations/:id.
func (h *OrganizationsHandler) Update(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.OrganizationUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	org, err := h.orgs.UpdateOrganization(c.UserContext(), caller, c.Params("id"), req.Name, req.Code, req.Active)
	if err != nil {
		return err
	}
	return ok(c, dto.NewOrganizationResponse(org))
}
