package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/models"
	"github.com/agriai/server/internal/service"
)

// ChatHandler wires HTTP → ChatService.
type ChatHandler struct {
	svc service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Register mounts the /chat endpoints on the supplied router group.
func (h *ChatHandler) Register(r fiber.Router) {
	r.Post("/chat/sessions", h.create)
	r.Get("/chat/sessions", h.list)
	r.Get("/chat/sessions/:id", h.get)
	r.Patch("/chat/sessions/:id", h.update)
	r.Delete("/chat/sessions/:id", h.remove)
	r.Post("/chat/sessions/:id/messages", h.send)
}

// create handles POST /chat/sessions
func (h *ChatHandler) create(c *fiber.Ctx) error {
	var req models.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	session, err := h.svc.CreateSession(c.UserContext(), currentUserID(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// list handles GET /chat/sessions
func (h *ChatHandler) list(c *fiber.Ctx) error {
	sessions, err := h.svc.ListSessions(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

// get handles GET /chat/sessions/:id
func (h *ChatHandler) get(c *fiber.Ctx) error {
	session, err := h.svc.GetSession(c.UserContext(), currentUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// update handles PATCH /chat/sessions/:id
func (h *ChatHandler) update(c *fiber.Ctx) error {
	var req models.UpdateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	session, err := h.svc.UpdateSession(c.UserContext(), currentUserID(c), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// remove handles DELETE /chat/sessions/:id
func (h *ChatHandler) remove(c *fiber.Ctx) error {
	if err := h.svc.DeleteSession(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// send handles POST /chat/sessions/:id/messages
func (h *ChatHandler) send(c *fiber.Ctx) error {
	var req models.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	reply, err := h.svc.SendMessage(c.UserContext(), currentUserID(c), c.Params("id"), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(reply)
}
