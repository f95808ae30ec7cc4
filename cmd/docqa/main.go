// Package main provides the docqa CLI for asking questions about a PDF and
// summarizing it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docqa/internal/app"
	"github.com/bull/docqa/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about a PDF and summarize it with a local model",
	Long: `docqa indexes a PDF into a vector store and answers questions strictly
from its content, citing the pages each answer was grounded on.

Documents can be local paths or github://owner/repo/path[@ref] locations.

Environment variables:
  OLLAMA_BASE_URL  OpenAI-compatible model server (default: http://localhost:11434/v1)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  PUSHGATEWAY_URL  Prometheus Pushgateway (default: http://localhost:9091)
  GITHUB_TOKEN     GitHub token for github:// documents (optional)
  DOCQA_*          Any configuration key, e.g. DOCQA_STORE__BACKEND=sqlite`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (yaml or json)")
	rootCmd.AddCommand(newAskCmd(), newSummarizeCmd(), newSummarizeRepoCmd(), newStatusCmd())
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the application components.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cfg.App, os.Stderr)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize: %w", err)
	}
	return a, nil
}

// cleanup tears down the session even when ctx was cancelled by a signal.
func cleanup(ctx context.Context, a *app.App) {
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		a.Logger.Warn("Failed to close vector store", "error", err)
	}
}
