package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tixledger/cmd/consumers/jobs"
	"tixledger/internal/config"
	"tixledger/internal/consumers"
	"tixledger/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Get().Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "tixledger-consumers"

	// Create and start consumers
	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	// Start consuming messages
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	ctx, stopJobs := context.WithCancel(context.Background())
	services := consumerService.Services()
	expirationJob := jobs.NewPurchaseExpirationJob(
		services.Purchases,
		services.Tickets,
		consumerService.DB(),
		cfg.Sweep.PurchaseTTL,
		cfg.Sweep.Interval,
		cfg.Sweep.ReissueBatch,
	)
	expirationJob.Start(ctx)

	logger.Get().Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Get().Info("Shutting down consumers service...")

	stopJobs()
	expirationJob.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		logger.Get().Error("Error during shutdown", "error", err)
	}

	logger.Get().Info("Consumers service stopped")
}
