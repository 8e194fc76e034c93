package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/service"
)

// ErrorHandler is the app-wide fiber error handler. Service sentinels map to
// status codes here so handlers mostly just return errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
	case errors.Is(err, service.ErrValidation):
		code = fiber.StatusBadRequest
		message = err.Error()
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		code = fiber.StatusUnauthorized
		message = "invalid credentials"
	case errors.Is(err, service.ErrForbidden):
		code = fiber.StatusForbidden
		message = "forbidden"
	case errors.Is(err, service.ErrNotFound):
		code = fiber.StatusNotFound
		message = "not found"
	case errors.Is(err, service.ErrEmailTaken):
		code = fiber.StatusConflict
		message = "email already registered"
	case errors.Is(err, service.ErrUpstream):
		code = fiber.StatusBadGateway
		message = "upstream service unavailable"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
