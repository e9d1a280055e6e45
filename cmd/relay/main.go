package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mossy-p/chat-relay/config"
	"github.com/mossy-p/chat-relay/internal/auth"
	"github.com/mossy-p/chat-relay/internal/blob"
	"github.com/mossy-p/chat-relay/internal/handlers"
	"github.com/mossy-p/chat-relay/internal/redis"
	"github.com/mossy-p/chat-relay/internal/registry"
	"github.com/mossy-p/chat-relay/internal/relay"
	"github.com/mossy-p/chat-relay/internal/store/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("failed to open database")
	}
	defer db.Close()

	blobs, err := blob.NewDiskStore(cfg.UploadsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare uploads dir")
	}

	// Presence mirroring is optional
	var presence relay.Presence
	if cfg.Redis.Enabled() {
		p, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer p.Close()
		presence = p
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connection established")
	}

	rel := relay.New(registry.New(), db, db, presence, log.Logger)
	h := &handlers.Handlers{
		Store:  db,
		Tokens: auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
		Relay:  rel,
		Blobs:  blobs,
		Socket: cfg.Socket,
		Log:    log.Logger,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(ctx, cfg, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("chat relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
