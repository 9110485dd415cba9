package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/evidence-engine/internal/adapters/mcp"
	"github.com/kirillkom/evidence-engine/internal/bootstrap"
	"github.com/kirillkom/evidence-engine/internal/config"
	"github.com/kirillkom/evidence-engine/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()
	// MCP speaks over stdout; keep logs on stderr.
	logger := logging.NewJSONLoggerTo(os.Stderr, "evidence-mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "evidence-mcp", logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Retriever, version, logger)
	logger.Info("mcp_serving_stdio")
	if err := srv.ServeStdio(); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}
