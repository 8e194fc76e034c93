package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/agriai/server/internal/service"
)

// WeatherHandler wires HTTP → WeatherService.
type WeatherHandler struct {
	svc service.WeatherService
}

// NewWeatherHandler creates a new WeatherHandler.
func NewWeatherHandler(svc service.WeatherService) *WeatherHandler {
	return &WeatherHandler{svc: svc}
}

// Register mounts the /weather endpoints on the supplied router group.
func (h *WeatherHandler) Register(r fiber.Router) {
	r.Get("/weather/current", h.current)
	r.Get("/weather/forecast", h.forecast)
}

// current handles GET /weather/current?lat=&lon=
func (h *WeatherHandler) current(c *fiber.Ctx) error {
	lat, lon, err := parseCoords(c)
	if err != nil {
		return err
	}

	snapshot, err := h.svc.Current(c.UserContext(), lat, lon)
	if err != nil {
		return err
	}
	return c.JSON(snapshot)
}

// forecast handles GET /weather/forecast?lat=&lon=&days=
func (h *WeatherHandler) forecast(c *fiber.Ctx) error {
	lat, lon, err := parseCoords(c)
	if err != nil {
		return err
	}

	days, err := strconv.Atoi(c.Query("days", "3"))
	if err != nil || days < 1 || days > 5 {
		return fiber.NewError(fiber.StatusBadRequest, "days must be between 1 and 5")
	}

	forecast, err := h.svc.Forecast(c.UserContext(), lat, lon, days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"days": forecast})
}

func parseCoords(c *fiber.Ctx) (float64, float64, error) {
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr == "" || lonStr == "" {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "lat and lon are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "lat must be a number between -90 and 90")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, fiber.NewError(fiber.StatusBadRequest, "lon must be a number between -180 and 180")
	}
	return lat, lon, nil
}
