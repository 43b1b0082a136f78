package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// StatsFunc reports backend entity counts.
type StatsFunc func() map[string]int

// HealthHandler responds to liveness and readiness checks.
type HealthHandler struct {
	serviceName string
	version     string
	stats       StatsFunc
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, stats StatsFunc) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, stats: stats}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports readiness together with backend counters.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ready"}
	if h.stats != nil {
		resp["backend"] = h.stats()
	}
	return c.JSON(resp)
}
