package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/pkg/util"
)

// UsersHandler exposes account administration endpoints.
type UsersHandler struct {
	auth *service.AuthService
	orgs *service.OrganizationService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, orgService *service.OrganizationService) *UsersHandler {
	return &UsersHandler{auth: authService, orgs: orgService}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	limit := c.QueryInt("pageSize", 50)
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	accounts, err := h.auth.ListUsers(c.UserContext(), caller, limit, (page-1)*limit)
	if err != nil {
		return err
	}
	result := make([]dto.UserResponse, 0, len(accounts))
	for i := range accounts {
		result = append(result, dto.NewUserResponse(&accounts[i]))
	}
	return ok(c, result)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.AccountCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	user, err := h.orgs.CreateAccount(c.UserContext(), caller, service.AccountCreateInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           domain.UserRole(req.Role),
		OrganizationID: req.OrganizationID,
		Phone:          req.Phone,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewUserResponse(user))
}

// Update handles PUT /api/users/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	caller, err := actor(c)
	if err != nil {
		return err
	}
	var req dto.AccountUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	input := service.AccountUpdateInput{
		OrganizationID: req.OrganizationID,
		Active:         req.Active,
	}
	if req.Role != nil {
		role := domain.UserRole(*req.Role)
		input.Role = &role
	}

	user, err := h.orgs.UpdateAccount(c.UserContext(), caller, c.Params("id"), input)
	if err != nil {
		return err
	}
	return ok(c, dto.NewUserResponse(user))
}
