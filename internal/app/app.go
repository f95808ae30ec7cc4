// Package app wires configuration into a ready-to-use document session and
// summarizer. Both commands share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docqa/internal/config"
	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/embedding"
	"github.com/bull/docqa/internal/generation"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/index"
	"github.com/bull/docqa/internal/metrics"
	"github.com/bull/docqa/internal/rag"
	"github.com/bull/docqa/internal/storage"
	"github.com/bull/docqa/internal/summarizer"
)

// App holds the long-lived components built from configuration.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      storage.VectorStore
	Index      *index.Adapter
	Extractor  document.Extractor
	Fetcher    *ghclient.Fetcher
	Generator  *generation.Generator
	Sink       metrics.Sink
	Session    *rag.Session
	Summarizer *summarizer.Summarizer
}

// New connects to the model server and the vector store and assembles the
// session and summarizer.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	client, err := embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.LLM.EmbeddingModel, cfg.LLM.EmbedBatchSize)
	generator := generation.NewGenerator(client, cfg.LLM.ChatModel)

	store, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s vector store: %w", cfg.Store.Backend, err)
	}
	adapter := index.NewAdapter(embedder, store, cfg.Store.CollectionPrefix, logger)

	var sink metrics.Sink = metrics.NopSink{}
	if cfg.Metrics.Enabled {
		sink = metrics.NewPushSink(cfg.Metrics.PushgatewayURL, logger)
	}

	gh, err := ghclient.NewClient(ctx, cfg.GitHub.Token)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}
	fetcher := ghclient.NewFetcher(gh)
	extractor := ghclient.NewExtractor(document.NewPDFExtractor(), fetcher, logger)

	session, err := rag.NewSession(rag.Config{
		ChunkSize: cfg.Index.ChunkSize,
		Overlap:   cfg.Index.Overlap,
		TopK:      cfg.Index.TopK,
	}, extractor, adapter, generator, sink, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("Components ready",
		"chat_model", generator.Model(),
		"embedding_model", embedder.Model(),
		"vector_store", cfg.Store.Backend,
		"metrics", cfg.Metrics.Enabled,
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Index:      adapter,
		Extractor:  extractor,
		Fetcher:    fetcher,
		Generator:  generator,
		Sink:       sink,
		Session:    session,
		Summarizer: summarizer.New(generator, sink, cfg.Summary.Output, logger),
	}, nil
}

// SummaryOptions returns the configured summary chunking for all pages.
func (a *App) SummaryOptions() summarizer.Options {
	return summarizer.Options{
		ChunkSize:   a.Config.Summary.ChunkSize,
		Overlap:     a.Config.Summary.Overlap,
		Concurrency: a.Config.Summary.Concurrency,
	}
}

// SummarizerFor returns a summarizer writing to output, or the configured
// one when output is empty.
func (a *App) SummarizerFor(output string) *summarizer.Summarizer {
	if output == "" {
		return a.Summarizer
	}
	return summarizer.New(a.Generator, a.Sink, output, a.Logger)
}

// Close destroys the session's collection and closes the vector store.
func (a *App) Close(ctx context.Context) error {
	if err := a.Session.Close(ctx); err != nil {
		a.Logger.Warn("Failed to clean up session", "error", err)
	}
	return a.Store.Close()
}
