package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/claim-assistant/internal/adapters/mcp"
	"github.com/kirillkom/claim-assistant/internal/bootstrap"
	"github.com/kirillkom/claim-assistant/internal/config"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/session/memory"
	"github.com/kirillkom/claim-assistant/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolkit, err := bootstrap.NewToolkit(cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer toolkit.Close()

	sessions := memory.NewStore(cfg.SessionTTL)
	go sessions.Run(ctx, time.Minute)

	srv, err := mcpadapter.New(toolkit.Tools, sessions).MCPServer()
	if err != nil {
		slog.Error("mcp_server_init_failed", "error", err)
		os.Exit(1)
	}

	slog.Info("mcp_serving_stdio", "tools", len(toolkit.Tools.Definitions()))
	if err := server.ServeStdio(srv); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
