package github

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bull/docqa/internal/document"
)

// Extractor resolves github:// locations by downloading them before handing
// the file to the wrapped extractor. Other paths go straight through.
type Extractor struct {
	base    document.Extractor
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewExtractor wraps base with GitHub download support.
func NewExtractor(base document.Extractor, fetcher *Fetcher, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{base: base, fetcher: fetcher, logger: logger}
}

// Extract loads the document at p. Remote documents keep their github://
// location as the document source; the pinned commit is logged.
func (e *Extractor) Extract(ctx context.Context, p string) (*document.Document, error) {
	if !IsRemote(p) {
		return e.base.Extract(ctx, p)
	}

	loc, err := ParseLocation(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrDocumentLoad, err)
	}

	if loc.Ref == "" {
		sha, err := e.fetcher.LatestCommitSHA(ctx, loc)
		if err != nil {
			e.logger.Warn("Could not resolve commit, using default branch", "location", p, "error", err)
		} else {
			loc.Ref = sha
		}
	}

	local, err := e.fetcher.Download(ctx, loc, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrDocumentLoad, err)
	}
	defer os.Remove(local)
	e.logger.Info("Downloaded document", "location", p, "ref", loc.Ref)

	doc, err := e.base.Extract(ctx, local)
	if err != nil {
		return nil, err
	}
	doc.Source = p
	return doc, nil
}
