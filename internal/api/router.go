package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/api/handlers"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/api/middleware"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/config"
	"github.com/mylife-as-miles/Jobraker-sub002/pkg/logger"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, deps *Dependencies) {
	// Health check routes (no prefix)
	app.Get("/health", handlers.HealthCheck(deps.Store))
	app.Get("/ready", handlers.ReadinessCheck(deps.Store, deps.ProviderConfigured))
	app.Get("/", handlers.Root(cfg))

	jobsHandler := handlers.NewJobsHandler(deps.Search, deps.Extract, deps.Poller, deps.Cron)
	jobs := app.Group("/api/jobs")

	// Scheduled trigger, authenticated by shared secret rather than a user token
	if cfg.Cron.Secret != "" {
		jobs.Post("/cron", middleware.CronSecret(cfg.Cron.Secret), jobsHandler.Cron)
	} else {
		logger.Warn("CRON_SECRET not set, /api/jobs/cron is unauthenticated")
		jobs.Post("/cron", jobsHandler.Cron)
	}

	withUser := func(h fiber.Handler) []fiber.Handler {
		if deps.Verifier == nil {
			return []fiber.Handler{h}
		}
		return []fiber.Handler{middleware.Auth(deps.Verifier), h}
	}
	if deps.Verifier == nil {
		logger.Warn("No token verifier configured, user routes trust the request body")
	}
	jobs.Post("/search", withUser(jobsHandler.Search)...)
	jobs.Post("/extract", withUser(jobsHandler.Extract)...)
	jobs.Post("/extract/status", withUser(jobsHandler.ExtractStatus)...)
}

// Dependencies holds all service dependencies for handlers
type Dependencies struct {
	Store              handlers.Pinger
	ProviderConfigured bool
	Verifier           middleware.TokenVerifier
	Search             handlers.SearchService
	Extract            handlers.ExtractService
	Poller             handlers.PollService
	Cron               handlers.CronService
}
