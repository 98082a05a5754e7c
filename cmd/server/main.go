// Command server runs the clinic assistant backend: the Instagram webhook
// receiver, the synchronous web-chat API, and the staff-facing appointment
// listing, backed by SQLite and the OpenAI chat API.
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

	"github.com/elementalclinic/go-clinic-backend/internal/config"
	httpapi "github.com/elementalclinic/go-clinic-backend/internal/http"
	"github.com/elementalclinic/go-clinic-backend/internal/llm"
	"github.com/elementalclinic/go-clinic-backend/internal/messenger"
	"github.com/elementalclinic/go-clinic-backend/internal/observability"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"
	"github.com/elementalclinic/go-clinic-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Msg("starting clinic backend")

	// Tracing
	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Model capability
	client, err := llm.NewOpenAIClient(cfg.OpenAI.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("openai client setup failed")
	}
	gen := llm.NewGenerator(client, cfg.OpenAI.Model, log.Logger)

	deps := httpapi.Dependencies{
		DB:        db,
		Generator: gen,
	}

	// Outbound messaging (only when the webhook surface is enabled)
	if cfg.Instagram.WebhookEnabled {
		mc, err := messenger.New(cfg.Instagram.PageAccessToken, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("messenger client setup failed")
		}
		deps.Sender = mc
		deps.Profile = mc
	}

	// HTTP transport
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

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
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM. Webhook events already ACKed keep
	// processing on detached contexts until the grace period ends.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
}
