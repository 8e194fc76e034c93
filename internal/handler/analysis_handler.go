package handler

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/service"
)

// AnalysisHandler wires HTTP → AnalysisService.
type AnalysisHandler struct {
	svc service.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(svc service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

// Register mounts the /analyses endpoints on the supplied router group.
func (h *AnalysisHandler) Register(r fiber.Router) {
	r.Post("/analyses", h.create)
	r.Get("/analyses", h.list)
	r.Get("/analyses/:id", h.get)
	r.Delete("/analyses/:id", h.remove)
}

// create handles POST /analyses (multipart: image, optional crop)
func (h *AnalysisHandler) create(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	if fh.Size > service.MaxImageBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image too large")
	}

	contentType := fh.Header.Get("Content-Type")
	if _, ok := service.ImageExtension(contentType); !ok {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "use a jpeg, png or webp image")
	}

	file, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not read image")
	}
	defer file.Close()

	// The declared size is client-controlled; cap the actual read too.
	image, err := io.ReadAll(io.LimitReader(file, service.MaxImageBytes+1))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "could not read image")
	}
	if len(image) > service.MaxImageBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image too large")
	}

	rec, err := h.svc.Create(c.UserContext(), currentUserID(c), image, contentType, c.FormValue("crop"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(rec)
}

// list handles GET /analyses
func (h *AnalysisHandler) list(c *fiber.Ctx) error {
	page, limit := parsePaging(c)

	analyses, total, err := h.svc.List(c.UserContext(), currentUserID(c), page, limit)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"analyses": analyses,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// get handles GET /analyses/:id
func (h *AnalysisHandler) get(c *fiber.Ctx) error {
	rec, err := h.svc.Get(c.UserContext(), currentUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// remove handles DELETE /analyses/:id
func (h *AnalysisHandler) remove(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
