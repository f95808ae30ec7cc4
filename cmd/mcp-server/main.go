// Package main provides the MCP server entry point for PDF question answering.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/docqa/internal/api"
	"github.com/bull/docqa/internal/app"
	"github.com/bull/docqa/internal/config"
	mcpserver "github.com/bull/docqa/internal/mcp"
)

func main() {
	configPath := flag.String("config", "", "configuration file (yaml or json)")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	// stdout carries the stdio transport, so logs always go to stderr
	logger := config.NewLogger(cfg.App, os.Stderr)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close vector store", "error", err)
		}
	}()

	server := mcpserver.NewServer(&mcpserver.Config{
		Session:        a.Session,
		Summarizer:     a.Summarizer,
		Extractor:      a.Extractor,
		SummaryOptions: a.SummaryOptions(),
		Fetcher:        a.Fetcher,
	})

	health := mcpserver.NewHealthHandler(a.Index, cfg.Store.Backend, func() string {
		return a.Session.State().String()
	})
	mux := mcpserver.NewMux(server, health)
	mux.Handle("/api/", api.NewServer(a.Session, logger))
	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.Mode == "http" {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "api", "/api/", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode: run MCP server over stdin/stdout for local clients.
	// Also start HTTP health endpoint in background for local testing
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting docqa MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
