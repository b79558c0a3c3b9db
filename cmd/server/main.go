// Command server runs the miniature inventory HTTP API.
//
// Startup order:
//  1. Load .env (best-effort) and the typed configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Initialize OpenTelemetry tracing when enabled
//  4. Open SQLite, install query instrumentation, migrate, seed defaults
//  5. Build the dependency graph (cache, bus, reference store, audit, images)
//  6. Serve with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/minivault/inventory-backend/internal/audit"
	"github.com/minivault/inventory-backend/internal/cache"
	"github.com/minivault/inventory-backend/internal/config"
	"github.com/minivault/inventory-backend/internal/domain"
	"github.com/minivault/inventory-backend/internal/events"
	httpapi "github.com/minivault/inventory-backend/internal/http"
	"github.com/minivault/inventory-backend/internal/images"
	"github.com/minivault/inventory-backend/internal/observability"
	"github.com/minivault/inventory-backend/internal/refdata"
	"github.com/minivault/inventory-backend/internal/repo"
	"github.com/minivault/inventory-backend/internal/sysutil"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			logger.Fatal().Err(err).Msg("otel setup failed")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("otel shutdown failed")
			}
		}()
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.NewQueryLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			logger.Warn().Err(err).Msg("gorm tracing plugin failed; continuing without")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	if err := repo.SeedDefaults(db, cfg.DefaultPaintedByID, cfg.DefaultBaseSizeID); err != nil {
		logger.Fatal().Err(err).Msg("seeding defaults failed")
	}

	bus := events.NewBus(logger, cfg.DebounceWindow)
	defer bus.Close()

	ref := refdata.NewStoreDB(db, cfg.CacheTTL, logger)
	unwatch := ref.Watch(bus)
	defer unwatch()

	deps := httpapi.Deps{
		DB:    db,
		Log:   logger,
		Cache: cache.New[domain.Miniature]("miniature-pages", cfg.CacheTTL),
		Ref:   ref,
		Bus:   bus,
		Audit: audit.NewRecorder(db, logger),
		Images: images.NewClient(
			cfg.Image.BaseURL,
			cfg.Image.PublicBaseURL,
			cfg.Image.Timeout,
			logger,
		),
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
