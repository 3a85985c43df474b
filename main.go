package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"farearound/internal/alerts"
	"farearound/internal/amadeus"
	"farearound/internal/cache"
	"farearound/internal/common/logging"
	"farearound/internal/config"
	"farearound/internal/email"
	"farearound/internal/handlers"
	"farearound/internal/middleware"
	"farearound/internal/server"
	"farearound/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Info("Starting FareAround API",
		logging.String("port", cfg.Port),
		logging.String("amadeus_base_url", cfg.AmadeusBaseURL),
		logging.String("cache_backend", cfg.CacheBackend),
		logging.String("database_type", cfg.DatabaseType),
	)

	store, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	responseCache, err := cache.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize response cache: %v", err)
	}

	client := amadeus.NewClient(cfg.AmadeusClientID, cfg.AmadeusClientSecret, cfg.AmadeusBaseURL, responseCache, logger)
	sender := email.NewService(cfg, logger)
	alertService := alerts.NewService(client, store, store, sender, cfg.AlertsCurrency, logger)

	if !cfg.SMTPConfigured() {
		logger.Warn("SMTP is not configured; price drop emails will fail until EMAIL_* variables are set")
	}

	if cfg.AlertsEnabled {
		scheduler, err := alerts.NewScheduler(alertService, cfg.AlertsCron, logger)
		if err != nil {
			log.Fatalf("Failed to create alert scheduler: %v", err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Failed to start alert scheduler: %v", err)
		}
		defer scheduler.Stop()
	}

	h := handlers.New(client, alertService, store, cfg, logger)
	srv := server.New(middleware.Logging(middleware.CORS(h.Router())), cfg.Port)

	errCh := srv.Start()
	logger.Info("Server started", logging.String("addr", ":"+cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case sig := <-quit:
		logger.Info("Shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
