// Package main runs the standalone MCP server. It needs no database or
// Redis: assessments are cached in memory and feedback lives in SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/irb-determination-server/internal/config"
	"github.com/irb-determination-server/internal/mcp"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadLiteConfig()

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		server.Close()
		os.Exit(1)
	}
}
