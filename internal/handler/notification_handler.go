package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/service"
)

// NotificationHandler wires HTTP → NotificationService.
type NotificationHandler struct {
	svc service.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// Register mounts the /notifications endpoints on the supplied router group.
func (h *NotificationHandler) Register(r fiber.Router) {
	r.Get("/notifications", h.list)
	r.Post("/notifications/read-all", h.readAll)
	r.Post("/notifications/:id/read", h.read)
}

// list handles GET /notifications
func (h *NotificationHandler) list(c *fiber.Ctx) error {
	page, limit := parsePaging(c)

	notifications, unread, err := h.svc.List(c.UserContext(), currentUserID(c), page, limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
		"page":          page,
		"limit":         limit,
	})
}

// read handles POST /notifications/:id/read
func (h *NotificationHandler) read(c *fiber.Ctx) error {
	if err := h.svc.MarkRead(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// readAll handles POST /notifications/read-all
func (h *NotificationHandler) readAll(c *fiber.Ctx) error {
	n, err := h.svc.MarkAllRead(c.UserContext(), currentUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"marked_read": n})
}
