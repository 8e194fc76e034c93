package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/models"
	"github.com/agriai/server/internal/service"
)

// UserHandler wires HTTP → AuthService for the profile endpoints.
type UserHandler struct {
	svc service.AuthService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc service.AuthService) *UserHandler {
	return &UserHandler{svc: svc}
}

// Register mounts the /users endpoints on the supplied router group.
func (h *UserHandler) Register(r fiber.Router) {
	r.Get("/users/me", h.me)
	r.Patch("/users/me", h.update)
}

// me handles GET /users/me
func (h *UserHandler) me(c *fiber.Ctx) error {
	user, err := h.svc.Profile(c.UserContext(), currentUserID(c))
	if err != nil {
		// A valid token for a vanished account reads as unauthenticated.
		if errors.Is(err, service.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	return c.JSON(user)
}

// update handles PATCH /users/me
func (h *UserHandler) update(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, err := h.svc.UpdateProfile(c.UserContext(), currentUserID(c), req)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	return c.JSON(user)
}
