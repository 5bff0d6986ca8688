// Command server runs the meal ingestion HTTP API.
//
// Startup order: env → config → logging → database → tracing → services →
// router → HTTP server with graceful shutdown.
//
// @title        go-meal-backend API
// @version      1.0
// @description  Meal ingestion backend: AI analysis with hedged retries, slot
// @description  selection, idempotent submissions, and favorite meals.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nutrilog/go-meal-backend/internal/ai"
	"github.com/nutrilog/go-meal-backend/internal/config"
	httpapi "github.com/nutrilog/go-meal-backend/internal/http"
	"github.com/nutrilog/go-meal-backend/internal/idempotency"
	"github.com/nutrilog/go-meal-backend/internal/observability"
	"github.com/nutrilog/go-meal-backend/internal/repo"
	"github.com/nutrilog/go-meal-backend/internal/services"
	"github.com/nutrilog/go-meal-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	guard := idempotency.New(
		idempotency.NewGormStore(db),
		cfg.IdempotencyTTL,
		idempotency.WithErrorCodec(services.IdempotencyCodec()),
	)
	go guard.Sweep(ctx, cfg.IdempotencySweepInterval)

	analyzer := ai.NewClient(cfg.AI.APIKey, cfg.AI.Model)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, analyzer, guard, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sdCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sdCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownTracing(sdCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
