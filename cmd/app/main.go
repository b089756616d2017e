package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sevenvoices/internal/api/v1/router"
	"sevenvoices/internal/config"
	"sevenvoices/internal/logger"
	"sevenvoices/internal/service"

	"github.com/joho/godotenv"
)

// @title 7Voices API
// @version 1.0
// @description Text-to-speech, accounts and subscriptions
// @host localhost:8080
// @BasePath /api
// @Schemes http https

func main() {
	// 1. Load configuration
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log := logger.New("info", true)
		log.Fatal().Msgf("Error loading config: %v", err)
	}

	log := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if envErr != nil {
		log.Warn().Msg("Warning: no .env file found")
	}

	ctx := context.Background()

	// 2. Resolve sm:// references
	if cfg.HasSecretRefs() {
		if err := resolveSecrets(ctx, cfg); err != nil {
			log.Fatal().Msgf("Failed to resolve secrets: %v", err)
		}
		log.Info().Msg("Secrets resolved from Secret Manager")
	}

	// 3. Build router (storage, providers, handlers)
	r, cleanup, err := router.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer cleanup()

	// 4. Create HTTP server. Synthesis responses stream provider audio, so the
	// write timeout has to cover a full provider call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.TTSRequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Start server in a goroutine
	go func() {
		log.Info().Msgf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("Listen: %s", err)
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received, exiting...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server shut down gracefully")
}

func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	sm, err := service.NewSecretManagerService(ctx, cfg.SecretManagerEndpoint)
	if err != nil {
		return err
	}
	defer sm.Close()
	return cfg.ResolveSecrets(ctx, sm)
}
