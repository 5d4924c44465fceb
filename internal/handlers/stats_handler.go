package handlers

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"torgbot/internal/config"
	"torgbot/internal/services"
)

// StatsHandler serves the aggregate usage statistics to operators
type StatsHandler struct {
	cfg   *config.Config
	users *services.UserService
}

func NewStatsHandler(cfg *config.Config, users *services.UserService) *StatsHandler {
	return &StatsHandler{cfg: cfg, users: users}
}

// Handle responds with the weekly statistics
// GET /api/stats (Authorization: Bearer <ADMIN_API_TOKEN>)
func (h *StatsHandler) Handle(c *fiber.Ctx) error {
	if h.cfg.AdminAPIToken == "" {
		return c.Status(404).JSON(fiber.Map{"error": "Not found"})
	}

	token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.AdminAPIToken)) != 1 {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}

	stats, err := h.users.GetStatistics()
	if err != nil {
		log.Printf("❌ [STATS] Failed to build statistics: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to build statistics"})
	}

	return c.JSON(stats)
}
