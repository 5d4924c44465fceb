package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds the per-IP HTTP rate limits. These protect the HTTP
// surface itself; the per-user question budget is enforced separately inside
// the answer pipeline.
type RateLimitConfig struct {
	// Webhook endpoint (per IP) - Telegram plus anyone probing the URL
	WebhookMax        int
	WebhookExpiration time.Duration

	// Stats API (per IP) - authenticated but still cheap to hammer
	StatsMax        int
	StatsExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Telegram delivers at most a handful of updates per second per bot
		WebhookMax:        300,
		WebhookExpiration: 1 * time.Minute,

		StatsMax:        30,
		StatsExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_WEBHOOK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WebhookMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_STATS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.StatsMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.WebhookMax = 1000
		config.StatsMax = 300
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// WebhookRateLimiter guards the Telegram webhook endpoint
func WebhookRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebhookMax,
		Expiration: config.WebhookExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "webhook:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Webhook limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.WebhookExpiration.Seconds()),
			})
		},
	})
}

// StatsRateLimiter guards the operator stats API
func StatsRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.StatsMax,
		Expiration: config.StatsExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "stats:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Stats limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests to this endpoint.",
				"retry_after": int(config.StatsExpiration.Seconds()),
			})
		},
	})
}
