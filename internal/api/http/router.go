package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/http/handlers"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/chat"
	"github.com/spec-kit/service-desk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Organizations  *handlers.OrganizationsHandler
	MACRequests    *handlers.RequestsHandler
	SupportTickets *handlers.RequestsHandler
	Chat           *handlers.ChatHandler
	System         *handlers.SystemHandler
	Gateway        *chat.Gateway
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Use("/ws", cfg.Gateway.Upgrade)
	app.Get("/ws", cfg.Gateway.Handler())

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Post("/password/forgot", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset", cfg.Auth.ConfirmPasswordReset)

	authProtected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	authProtected.Post("/password/change", cfg.Auth.ChangePassword)
	authProtected.Get("/me", cfg.Auth.Profile)
	authProtected.Get("/profile", cfg.Auth.Profile)
	authProtected.Put("/profile", cfg.Auth.UpdateProfile)

	users := api.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	users.Get("", cfg.Users.List)
	users.Post("", cfg.Users.Create)
	users.Put("/:id", cfg.Users.Update)

	organizations := api.Group("/organizations", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	organizations.Post("", cfg.Organizations.Create)
	organizations.Get("", cfg.Organizations.List)
	organizations.Get("/:id", cfg.Organizations.Get)
	organizations.Put("/:id", cfg.Organizations.Update)

	registerRequestRoutes(api.Group("/mac-requests", cfg.AuthMiddleware.Handle, auth.RequireAnyRole()), cfg.MACRequests)

	tickets := api.Group("/support/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	registerRequestRoutes(tickets, cfg.SupportTickets)
	tickets.Get("/:id/messages", cfg.Chat.Messages)
	tickets.Post("/:id/messages", cfg.Chat.Post)

	chatGroup := api.Group("/support/chat", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	chatGroup.Post("", cfg.Chat.Post)
	chatGroup.Get("/:id", cfg.Chat.Messages)

	api.Get("/system/status", cfg.System.List)
	api.Post("/system/status", cfg.AuthMiddleware.Handle, auth.RequireAdmin(), cfg.System.Create)
	api.Put("/system/status/:id", cfg.AuthMiddleware.Handle, auth.RequireAdmin(), cfg.System.Update)
}

func registerRequestRoutes(group fiber.Router, handler *handlers.RequestsHandler) {
	group.Post("", handler.Create)
	group.Get("", handler.List)
	group.Get("/stats", auth.RequireRole(domain.RoleAdmin, domain.RoleSupport), handler.Stats)
	group.Get("/number/:number", handler.GetByNumber)
	group.Get("/:id", handler.Get)
	group.Put("/:id", handler.Update)
	group.Delete("/:id", auth.RequireAdmin(), handler.Delete)
	group.Post("/:id/assign", auth.RequireRole(domain.RoleAdmin, domain.RoleSupport), handler.Assign)
	group.Post("/:id/assign/self", auth.RequireRole(domain.RoleAdmin, domain.RoleSupport), handler.SelfAssign)
	group.Post("/:id/assign/auto", auth.RequireRole(domain.RoleAdmin, domain.RoleSupport), handler.AutoAssign)
}
