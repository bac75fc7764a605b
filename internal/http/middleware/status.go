package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/apperr"
)

// responseStatus returns the status the client will see. A handler error has not been
// rendered by the error handler yet, so its status is derived from the error itself.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus()
	}
	return fiber.StatusInternalServerError
}
