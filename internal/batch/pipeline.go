// Package batch summarizes every PDF below a GitHub repository directory.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bull/docqa/internal/document"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/summarizer"
)

// Result contains statistics about a batch run.
type Result struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Outputs        []string
	CommitSHA      string
	Duration       time.Duration
}

// FailedDoc represents a document that could not be summarized.
type FailedDoc struct {
	Path   string
	Reason string
}

// Lister finds PDFs in a repository. *github.Fetcher implements it.
type Lister interface {
	ListPDFs(ctx context.Context, loc ghclient.Location) ([]ghclient.Location, error)
	LatestCommitSHA(ctx context.Context, loc ghclient.Location) (string, error)
}

// SummarizerFactory returns a summarizer that writes to output.
type SummarizerFactory func(output string) *summarizer.Summarizer

// Pipeline orchestrates listing, extraction and summarization.
type Pipeline struct {
	lister     Lister
	extractor  document.Extractor
	summarizer SummarizerFactory
	logger     *slog.Logger
}

// NewPipeline creates a new batch pipeline with the given components.
func NewPipeline(lister Lister, extractor document.Extractor, factory SummarizerFactory, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		lister:     lister,
		extractor:  extractor,
		summarizer: factory,
		logger:     logger,
	}
}

// SummarizeAll summarizes every PDF below loc into outDir, one artifact per
// document. The run is pinned to one commit so all documents come from the
// same snapshot. Documents that fail are recorded and skipped.
func (p *Pipeline) SummarizeAll(ctx context.Context, loc ghclient.Location, outDir string, opts summarizer.Options) (*Result, error) {
	start := time.Now()
	result := &Result{}

	// 1. Pin the commit
	if loc.Ref == "" {
		sha, err := p.lister.LatestCommitSHA(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("get commit SHA: %w", err)
		}
		loc.Ref = sha
	}
	result.CommitSHA = loc.Ref
	p.logger.Info("Starting batch summary", "location", loc.String(), "commit", loc.Ref)

	// 2. List all PDFs
	docs, err := p.lister.ListPDFs(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	result.TotalDocs = len(docs)
	p.logger.Info("Found documents", "count", len(docs))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	// 3. Process each document
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		output := filepath.Join(outDir, OutputName(loc.Path, doc.Path))
		chunks, err := p.processDocument(ctx, doc, output, opts)
		if err != nil {
			p.logger.Warn("Failed to summarize document", "path", doc.Path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{
				Path:   doc.Path,
				Reason: err.Error(),
			})
			continue // Skip unreadable documents, continue with others
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
		result.Outputs = append(result.Outputs, output)
	}

	result.Duration = time.Since(start)
	p.logger.Info("Batch summary complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)

	return result, nil
}

// processDocument extracts and summarizes one document.
// Returns the number of chunks that were summarized.
func (p *Pipeline) processDocument(ctx context.Context, loc ghclient.Location, output string, opts summarizer.Options) (int, error) {
	doc, err := p.extractor.Extract(ctx, loc.String())
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}
	p.logger.Debug("Extracted document", "path", loc.Path, "pages", doc.PageCount())

	report, err := p.summarizer(output).Summarize(ctx, doc, opts)
	if err != nil {
		return 0, fmt.Errorf("summarize: %w", err)
	}
	if report.TotalChunks > 0 && report.Succeeded == 0 {
		return 0, fmt.Errorf("all %d chunks failed", report.TotalChunks)
	}

	p.logger.Info("Summarized document", "path", loc.Path, "chunks", report.Succeeded, "output", output)
	return report.Succeeded, nil
}

// OutputName derives a flat artifact name from a document path relative to
// the listed directory: docs/a/b.pdf under docs becomes a_b.summary.txt.
func OutputName(root, docPath string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(docPath, strings.Trim(root, "/")), "/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	if rel == "" {
		rel = strings.TrimSuffix(path.Base(docPath), path.Ext(docPath))
	}
	return strings.ReplaceAll(rel, "/", "_") + ".summary.txt"
}
