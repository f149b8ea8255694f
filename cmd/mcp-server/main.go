package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/irb-determination-server/internal/bootstrap"
	"github.com/irb-determination-server/internal/config"
	"github.com/irb-determination-server/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	// stdout carries the MCP stream.
	logging := cfg.Logging
	if logging.Output == "" || logging.Output == "stdout" {
		logging.Output = "stderr"
	}
	logger, err := bootstrap.NewLogger(logging)
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

	opts := []mcp.ServerOption{mcp.WithRequestTimeout(cfg.MCP.RequestTimeout)}
	if components.Feedback != nil {
		opts = append(opts, mcp.WithFeedback(components.Feedback, cfg.MCP.ExportDir))
	}

	server := mcp.NewServer(mcp.ServerInfo{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}, components.Assessments, logger, opts...)

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		components.Close()
		os.Exit(1)
	}

	logger.Info("IRB determination MCP server stopped")
}
