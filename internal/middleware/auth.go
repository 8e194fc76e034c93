// Package middleware holds the Fiber middleware shared by every route group.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/auth"
)

// UserIDKey is the Locals key under which RequireAuth stores the caller's id.
const UserIDKey = "user_id"

// RequireAuth validates the Bearer access token and stashes the user id in
// the request Locals so handlers can read it without reparsing the token.
func RequireAuth(tokens *auth.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		claims, err := tokens.ValidateAccess(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(UserIDKey, claims.UserID)
		return c.Next()
	}
}
