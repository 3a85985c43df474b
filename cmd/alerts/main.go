// The alerts command runs one price-drop batch and exits. It prints the
// summary as JSON so cron and systemd logs stay machine-parseable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"farearound/internal/alerts"
	"farearound/internal/amadeus"
	"farearound/internal/cache"
	"farearound/internal/common/logging"
	"farearound/internal/config"
	"farearound/internal/email"
	"farearound/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	logging.InitGlobalLogger()
	defer logging.MustSync()
	logger := logging.GetGlobalLogger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", err)
		return 1
	}

	store, err := storage.New(cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", err)
		return 1
	}
	defer store.Close()

	responseCache, err := cache.NewFromConfig(cfg)
	if err != nil {
		logger.Error("Failed to initialize response cache", err)
		return 1
	}

	client := amadeus.NewClient(cfg.AmadeusClientID, cfg.AmadeusClientSecret, cfg.AmadeusBaseURL, responseCache, logger)
	sender := email.NewService(cfg, logger)
	service := alerts.NewService(client, store, store, sender, cfg.AlertsCurrency, logger)

	summary, err := service.CheckPriceDrops(context.Background())
	if err != nil {
		logger.Error("Alert job failed", err)
		return 1
	}

	out, err := json.Marshal(summary)
	if err != nil {
		logger.Error("Failed to encode summary", err)
		return 1
	}
	fmt.Println(string(out))

	return 0
}
