package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/irb-determination-server/internal/api"
	"github.com/irb-determination-server/internal/bootstrap"
	"github.com/irb-determination-server/internal/config"
)

func main() {
	// Local development keeps IRB_* overrides in .env; absence is fine.
	_ = godotenv.Load()

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := bootstrap.Build(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize components")
	}
	defer components.Close()

	opts := make([]api.ServerOption, 0, len(components.HealthChecks)+1)
	for name, check := range components.HealthChecks {
		opts = append(opts, api.WithHealthCheck(name, api.HealthCheck(check)))
	}
	if components.Feedback != nil {
		opts = append(opts, api.WithFeedbackStore(components.Feedback))
	}

	server := api.NewServer(configManager, components.Assessments, logger, opts...)

	logger.WithField("production", configManager.IsProduction()).Info("Starting IRB determination server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		components.Close()
		os.Exit(1)
	}

	logger.Info("Server stopped")
}
