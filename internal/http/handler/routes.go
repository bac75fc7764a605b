package handler

import (
	"github.com/gofiber/fiber/v2"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/service"
)

// Deps are the collaborators the routes need.
type Deps struct {
	DB        Pinger
	Auth      service.AuthService
	Documents service.DocumentService
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; authorization is enforced again inside the services.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/", Root())
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessCheck())

	requireAuth := middleware.RequireAuth(d.Auth)
	requireAdmin := middleware.RequireRole(model.RoleAdmin)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", middleware.OptionalAuth(d.Auth), Register(d.Auth))
	authGroup.Post("/login", Login(d.Auth))

	app.Get("/users/me", requireAuth, Me())

	docs := app.Group("/documents", requireAuth)
	docs.Get("/", ListDocuments(d.Documents))
	docs.Post("/", requireAdmin, UploadDocument(d.Documents))
	docs.Get("/:id", GetDocument(d.Documents))
	docs.Get("/:id/versions", ListVersions(d.Documents))
	docs.Get("/:id/download", DownloadDocument(d.Documents))
	docs.Delete("/:id", requireAdmin, DeleteDocument(d.Documents))
}
