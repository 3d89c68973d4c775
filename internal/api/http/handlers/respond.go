package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/pkg/util"
)

// ok writes the success envelope.
func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// created writes the success envelope with 201.
func created(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// okMessage writes a data-less success envelope.
func okMessage(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{"success": true, "message": message})
}

// actor resolves the authenticated user or fails the request.
func actor(c *fiber.Ctx) (*domain.User, error) {
	principal, found := auth.PrincipalFromContext(c)
	if !found || principal.User == nil {
		return nil, util.NewUnauthorized("authentication required")
	}
	return principal.User, nil
}
