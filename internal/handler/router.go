package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/middleware"
	"github.com/agriai/server/internal/service"
)

var validate = validator.New()

// RegisterRoutes wires every handler into the app. guard authenticates
// requests and stores the caller id in locals; routes registered before it
// stay public.
func RegisterRoutes(app *fiber.App,
	guard fiber.Handler,
	authSvc service.AuthService,
	analysisSvc service.AnalysisService,
	chatSvc service.ChatService,
	weatherSvc service.WeatherService,
	communitySvc service.CommunityService,
	notificationSvc service.NotificationService,
) {

	v1 := app.Group("/api/v1")
	NewAuthHandler(authSvc).Register(v1)

	v1.Use(guard)
	NewUserHandler(authSvc).Register(v1)
	NewAnalysisHandler(analysisSvc).Register(v1)
	NewChatHandler(chatSvc).Register(v1)
	NewWeatherHandler(weatherSvc).Register(v1)
	NewCommunityHandler(communitySvc).Register(v1)
	NewNotificationHandler(notificationSvc).Register(v1)
}

// currentUserID reads the caller id the auth guard stored.
func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(middleware.UserIDKey).(string)
	return id
}

// parsePaging reads ?page and ?limit with sane bounds.
func parsePaging(c *fiber.Ctx) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
