package handler

import (
	"github.com/gofiber/fiber/v2"

	"docvault/internal/apperr"
	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// Register godoc
// @Summary Register a user
// @Description The first account becomes admin. Afterwards an admin token is required unless open signup is enabled.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.RegisterInput true "credentials"
// @Success 201 {object} model.User
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Security BearerAuth
// @Router /auth/register [post]
func Register(svc service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.RegisterInput
		if err := c.BodyParser(&in); err != nil {
			return apperr.BadRequest("invalid request body")
		}
		u, err := svc.Register(c.UserContext(), middleware.CurrentUser(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// Login godoc
// @Summary Issue a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.LoginInput true "credentials"
// @Success 200 {object} service.LoginResult
// @Failure 401 {object} errorPayload
// @Failure 429 {object} errorPayload
// @Router /auth/login [post]
func Login(svc service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.LoginInput
		if err := c.BodyParser(&in); err != nil {
			return apperr.BadRequest("invalid request body")
		}
		in.ClientKey = c.IP()
		res, err := svc.Login(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Success 200 {object} model.User
// @Failure 401 {object} errorPayload
// @Security BearerAuth
// @Router /users/me [get]
func Me() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := middleware.CurrentUser(c)
		if u == nil {
			return apperr.ErrUnauthorized
		}
		return c.JSON(u)
	}
}
