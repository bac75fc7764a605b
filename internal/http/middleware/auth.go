package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/apperr"
	"docvault/internal/model"
)

// UserLocalKey is the Fiber locals key holding the authenticated *model.User.
const UserLocalKey = "user"

// TokenResolver maps bearer tokens to users.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*model.User, error)
	ResolveOptional(ctx context.Context, token string) *model.User
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(r TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := r.ResolveToken(c.UserContext(), BearerToken(c))
		if err != nil {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return err
		}
		c.Locals(UserLocalKey, u)
		return c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present and continues either way.
func OptionalAuth(r TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if u := r.ResolveOptional(c.UserContext(), BearerToken(c)); u != nil {
			c.Locals(UserLocalKey, u)
		}
		return c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil {
			return apperr.ErrUnauthorized
		}
		if role == model.RoleAdmin && !u.IsAdmin() {
			return apperr.Forbidden("admin role required")
		}
		return c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *fiber.Ctx) *model.User {
	u, _ := c.Locals(UserLocalKey).(*model.User)
	return u
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
