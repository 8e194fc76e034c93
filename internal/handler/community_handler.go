package handler

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/models"
	"github.com/agriai/server/internal/service"
)

// CommunityHandler wires HTTP → CommunityService.
type CommunityHandler struct {
	svc service.CommunityService
}

// NewCommunityHandler creates a new CommunityHandler.
func NewCommunityHandler(svc service.CommunityService) *CommunityHandler {
	return &CommunityHandler{svc: svc}
}

// Register mounts the /community endpoints on the supplied router group.
func (h *CommunityHandler) Register(r fiber.Router) {
	r.Post("/community/posts", h.create)
	r.Get("/community/posts", h.list)
	r.Get("/community/posts/:id", h.get)
	r.Delete("/community/posts/:id", h.remove)
	r.Put("/community/posts/:id/like", h.like)
	r.Delete("/community/posts/:id/like", h.unlike)
	r.Post("/community/posts/:id/comments", h.comment)
}

// create handles POST /community/posts. A JSON body carries text-only posts; a
// multipart form adds an image under the "image" field.
func (h *CommunityHandler) create(c *fiber.Ctx) error {
	var (
		req       models.CreatePostRequest
		image     []byte
		imageType string
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		req.Content = c.FormValue("content")
		if tags := strings.TrimSpace(c.FormValue("tags")); tags != "" {
			req.Tags = strings.Split(tags, ",")
		}

		if fh, err := c.FormFile("image"); err == nil {
			if fh.Size > service.MaxImageBytes {
				return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image too large")
			}
			imageType = fh.Header.Get("Content-Type")
			if _, ok := service.ImageExtension(imageType); !ok {
				return fiber.NewError(fiber.StatusUnsupportedMediaType, "use a jpeg, png or webp image")
			}

			file, err := fh.Open()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "could not read image")
			}
			defer file.Close()
			image, err = io.ReadAll(io.LimitReader(file, service.MaxImageBytes+1))
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "could not read image")
			}
			if len(image) > service.MaxImageBytes {
				return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image too large")
			}
		}
	} else if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}

	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	post, err := h.svc.CreatePost(c.UserContext(), currentUserID(c), req, image, imageType)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// list handles GET /community/posts?tag=&page=&limit=
func (h *CommunityHandler) list(c *fiber.Ctx) error {
	page, limit := parsePaging(c)

	posts, total, err := h.svc.ListPosts(c.UserContext(), page, limit, c.Query("tag"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"posts": posts,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// get handles GET /community/posts/:id
func (h *CommunityHandler) get(c *fiber.Ctx) error {
	post, err := h.svc.GetPost(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(post)
}

// remove handles DELETE /community/posts/:id
func (h *CommunityHandler) remove(c *fiber.Ctx) error {
	if err := h.svc.DeletePost(c.UserContext(), currentUserID(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// like handles PUT /community/posts/:id/like
func (h *CommunityHandler) like(c *fiber.Ctx) error {
	count, err := h.svc.Like(c.UserContext(), currentUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"like_count": count})
}

// unlike handles DELETE /community/posts/:id/like
func (h *CommunityHandler) unlike(c *fiber.Ctx) error {
	count, err := h.svc.Unlike(c.UserContext(), currentUserID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"like_count": count})
}

// comment handles POST /community/posts/:id/comments
func (h *CommunityHandler) comment(c *fiber.Ctx) error {
	var req models.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	comment, err := h.svc.AddComment(c.UserContext(), currentUserID(c), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}
