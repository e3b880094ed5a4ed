package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/config"
)

const version = "1.0.0"

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns the health status. It always answers 200; the
// store status is informational.
func HealthCheck(store Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "healthy",
			"version":      version,
			"store_status": pingStatus(c.UserContext(), store),
		})
	}
}

// ReadinessCheck returns whether the service is ready to accept traffic
func ReadinessCheck(store Pinger, providerConfigured bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if status := pingStatus(c.UserContext(), store); status != "healthy" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not_ready",
				"reason": "Store " + status,
			})
		}

		if !providerConfigured {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not_ready",
				"reason": "FIRECRAWL_API_KEY not configured",
			})
		}

		return c.JSON(fiber.Map{
			"status": "ready",
		})
	}
}

// Root returns basic API info
func Root(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":     "Job Ingestion API",
			"version":  version,
			"health":   "/health",
			"ready":    "/ready",
			"store":    cfg.Database.Driver,
			"schedule": cfg.Cron.Schedule,
		})
	}
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unavailable"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "healthy"
}
