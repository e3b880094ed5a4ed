package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/api"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/api/middleware"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/classify"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/config"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/enrich"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/firecrawl"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/mirror"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/pipeline"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/queue"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/scraper"
	"github.com/mylife-as-miles/Jobraker-sub002/internal/store"
	"github.com/mylife-as-miles/Jobraker-sub002/pkg/logger"
)

const version = "1.0.0"

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Server.Debug)
	defer logger.Sync()

	logger.Info("Starting job ingestion API",
		zap.String("version", version),
		zap.Bool("debug", cfg.Server.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Database.Driver,
		DatabaseURL: cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		SupabaseURL: cfg.Database.SupabaseURL,
		SupabaseKey: cfg.Database.ServiceKey,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	fc := firecrawl.New(firecrawl.Config{
		BaseURL: cfg.Firecrawl.BaseURL,
		APIKey:  cfg.Firecrawl.APIKey,
		Timeout: cfg.Firecrawl.Timeout,
	}, logger.Named("firecrawl"))
	if !fc.Configured() {
		logger.Warn("FIRECRAWL_API_KEY not set, search and extract will fail")
	}

	policy := domain.NewDomainPolicy(cfg.Domains.Defaults, cfg.Domains.Blocklist)
	interactive := classify.NewInteractive()
	bulk := classify.NewBulk()

	// Fetchers used by the scheduled run
	registry := scraper.NewRegistry()
	registry.Register(scraper.NewRemotiveFetcher(logger.Named("remotive")))
	registry.Register(scraper.NewRemoteOKFetcher(logger.Named("remoteok")))
	registry.Register(scraper.NewArbeitnowFetcher(logger.Named("arbeitnow")))
	registry.Register(scraper.NewSearchFetcher(fc, bulk, logger.Named("search")))
	if cfg.Adzuna.AppID != "" && cfg.Adzuna.AppKey != "" {
		registry.Register(scraper.NewAdzunaFetcher(cfg.Adzuna.AppID, cfg.Adzuna.AppKey, cfg.Adzuna.Country, logger.Named("adzuna")))
	}

	var renderer scraper.Renderer
	if cfg.Browser.Enabled {
		bcfg := scraper.DefaultBrowserConfig()
		bcfg.Timeout = cfg.Browser.Timeout
		bcfg.MaxTabs = cfg.Browser.MaxTabs
		bcfg.ProxyURL = cfg.Browser.Proxy
		browser := scraper.NewBrowserPool(logger.Named("browser"), bcfg)
		defer browser.Close()
		renderer = browser
	}
	registry.Register(scraper.NewDeepResearchFetcher(fc, bulk, renderer, cfg.Search.DeepResearchHops, logger.Named("deep_research")))

	// Optional model enrichment; without it descriptions fall back to plain text
	var enricher pipeline.Enricher
	if cfg.Enrichment.Enabled {
		completer, err := enrich.NewLLMCompleter(ctx, enrich.LLMConfig{
			Provider:    cfg.Enrichment.Provider,
			APIKey:      cfg.Enrichment.APIKey,
			Model:       cfg.Enrichment.Model,
			Temperature: cfg.Enrichment.Temperature,
		})
		if err != nil {
			logger.Warn("Enrichment disabled", zap.Error(err))
		} else {
			enricher = enrich.NewPool(enrich.NewEnricher(completer, logger.Named("enrich")), cfg.Search.EnrichConcurrency, logger.Named("enrich"))
		}
	}

	// Redis backs the async search queue and the cron lock
	var (
		searchQueue *queue.SearchQueue
		enqueuer    pipeline.Enqueuer
		locker      pipeline.Locker
	)
	if cfg.Redis.URL != "" {
		rdb, err := queue.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("Redis unavailable, running without queue or cron lock", zap.Error(err))
		} else {
			defer rdb.Close()
			searchQueue = queue.NewSearchQueue(rdb, cfg.Redis.Consumer, logger.Named("queue"))
			enqueuer = searchQueue
			locker = queue.NewLock(rdb, queue.CronLockKey, cfg.Cron.LockTTL)
		}
	}

	var mir mirror.Mirror
	if cfg.Mirror.Enabled {
		fm, err := mirror.NewFirestore(ctx, mirror.Config{
			ProjectID:       cfg.Mirror.ProjectID,
			Database:        cfg.Mirror.Database,
			Collection:      cfg.Mirror.Collection,
			CredentialsJSON: []byte(cfg.Mirror.CredentialsJSON),
			BatchSize:       cfg.Mirror.BatchSize,
		}, logger.Named("mirror"))
		if err != nil {
			logger.Warn("Firestore mirror disabled", zap.Error(err))
		} else {
			mir = fm
		}
	}

	sources, errs := cronSources(cfg.Cron.Sources, registry)
	for _, e := range errs {
		logger.Warn("Ignoring configured source", zap.Error(e))
	}

	search := pipeline.NewSearch(
		scraper.NewSearchFetcher(fc, interactive, logger.Named("search")),
		st, st, policy, enricher, enqueuer, logger.Named("search"),
	)
	poller := pipeline.NewPoller(fc, st, logger.Named("poller"))
	cronRun := pipeline.NewCron(registry, sources, bulk, policy, st, mir, locker, logger.Named("cron"))

	var verifier middleware.TokenVerifier
	if cfg.Auth.SupabaseURL != "" && cfg.Auth.AnonKey != "" {
		v, err := middleware.NewSupabaseVerifier(cfg.Auth.SupabaseURL, cfg.Auth.AnonKey)
		if err != nil {
			return fmt.Errorf("token verifier: %w", err)
		}
		verifier = v
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "Job Ingestion API v" + version,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: !cfg.Server.Debug,
		ErrorHandler:          errorHandler,
	})

	// Setup middleware
	middleware.Setup(app, cfg)

	// Setup routes
	api.SetupRoutes(app, cfg, &api.Dependencies{
		Store:              st,
		ProviderConfigured: fc.Configured(),
		Verifier:           verifier,
		Search:             search,
		Extract:            scraper.NewExtractSubmitter(fc, logger.Named("extract")),
		Poller:             poller,
		Cron:               cronRun,
	})

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	g.Go(func() error {
		logger.Info("Server starting",
			zap.String("address", addr),
			zap.String("store", cfg.Database.Driver),
			zap.Int("cron_sources", len(sources)),
		)
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return app.ShutdownWithTimeout(15 * time.Second)
	})

	if searchQueue != nil {
		g.Go(func() error {
			return searchQueue.Consume(gctx, search.HandleQueued)
		})
	}

	if cfg.Cron.Enabled && len(sources) > 0 {
		scheduler := pipeline.NewScheduler(cronRun, cfg.Cron.Schedule, cfg.Cron.Timeout, logger.Named("scheduler"))
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			scheduler.Stop()
			return nil
		})
	}

	return g.Wait()
}

// errorHandler handles errors globally
func errorHandler(c *fiber.Ctx, err error) error {
	// Default to 500
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Log error
	logger.Error("Request error",
		zap.Int("status", code),
		zap.String("path", c.Path()),
		zap.Error(err),
	)

	return c.Status(code).JSON(fiber.Map{
		"error":   "request_failed",
		"message": message,
		"path":    c.Path(),
	})
}
