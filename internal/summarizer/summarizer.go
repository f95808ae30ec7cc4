// Package summarizer produces per-chunk summaries of a document and writes
// them to a single text artifact.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/markdown"
	"github.com/bull/docqa/internal/metrics"
	"github.com/bull/docqa/internal/prompt"
)

const (
	// DefaultChunkSize and DefaultOverlap favour short, focused summaries.
	DefaultChunkSize = 2000
	DefaultOverlap   = 100

	// DefaultOutputPath is the artifact written by every run.
	DefaultOutputPath = "summaries.txt"
)

// ErrEmptySummary marks a chunk whose summary came back blank.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Options selects what to summarize and how to chunk it.
type Options struct {
	ChunkSize int
	Overlap   int
	// Pages restricts the run to these 0-based page indices. Nil means the
	// whole document.
	Pages []int
	// Concurrency bounds parallel model calls. Values below 2 run sequentially.
	Concurrency int
}

// Record is the outcome of summarizing one chunk.
type Record struct {
	SequenceID int
	SourcePage int
	Summary    string
	Succeeded  bool
	Err        error
}

// Report aggregates a run. Succeeded + Failed == TotalChunks, and Summaries
// holds the successful summaries in chunk order.
type Report struct {
	TotalChunks int
	Succeeded   int
	Failed      int
	Elapsed     time.Duration
	Records     []Record
	Summaries   []string
	OutputPath  string
}

// Summarizer drives the model over every chunk of a document.
type Summarizer struct {
	model     generation.Model
	sink      metrics.Sink
	output    string
	flattener *markdown.Flattener
	logger    *slog.Logger
}

// New creates a summarizer writing to outputPath. An empty path selects
// DefaultOutputPath and a nil sink discards metrics.
func New(model generation.Model, sink metrics.Sink, outputPath string, logger *slog.Logger) *Summarizer {
	if outputPath == "" {
		outputPath = DefaultOutputPath
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		model:     model,
		sink:      sink,
		output:    outputPath,
		flattener: markdown.NewFlattener(),
		logger:    logger,
	}
}

// OutputPath returns where the artifact is written.
func (s *Summarizer) OutputPath() string { return s.output }

// Summarize chunks doc (or the selected pages of it) and summarizes every
// chunk. A failed chunk is recorded and skipped; it never aborts the run.
// Only invalid options and artifact write failures are returned as errors.
func (s *Summarizer) Summarize(ctx context.Context, doc *document.Document, opts Options) (*Report, error) {
	start := time.Now()

	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
		if opts.Overlap == 0 {
			opts.Overlap = DefaultOverlap
		}
	}
	ch, err := chunker.New(opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}

	if opts.Pages != nil {
		doc = doc.SelectPages(opts.Pages)
	}
	segments := ch.Split(doc)
	s.logger.Info("Summarizing document",
		"source", doc.Source,
		"pages", doc.PageCount(),
		"chunks", len(segments),
	)

	records := make([]Record, len(segments))
	var succeeded, failed atomic.Int64

	summarizeOne := func(i int) {
		rec := s.summarizeSegment(ctx, segments[i])
		if rec.Succeeded {
			succeeded.Add(1)
		} else {
			failed.Add(1)
			s.logger.Warn("Chunk summary failed", "chunk", rec.SequenceID, "page", rec.SourcePage, "error", rec.Err)
		}
		records[i] = rec
	}

	if opts.Concurrency < 2 {
		for i := range segments {
			summarizeOne(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i := range segments {
			g.Go(func() error {
				summarizeOne(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &Report{
		TotalChunks: len(segments),
		Succeeded:   int(succeeded.Load()),
		Failed:      int(failed.Load()),
		Records:     records,
		Summaries:   make([]string, 0, len(records)),
		OutputPath:  s.output,
	}
	for _, rec := range records {
		if rec.Succeeded {
			report.Summaries = append(report.Summaries, rec.Summary)
		}
	}

	if err := WriteArtifact(s.output, report.Summaries); err != nil {
		return nil, err
	}
	report.Elapsed = time.Since(start)

	s.sink.Record(context.WithoutCancel(ctx), metrics.Event{
		Job: metrics.JobSummary,
		Gauges: map[string]float64{
			"summary_generation_seconds": report.Elapsed.Seconds(),
			"summary_chunks_total":       float64(report.TotalChunks),
			"summary_chunks_successful":  float64(report.Succeeded),
			"summary_chunks_failed":      float64(report.Failed),
		},
	})

	s.logger.Info("Summaries written",
		"path", s.output,
		"total", report.TotalChunks,
		"successful", report.Succeeded,
		"failed", report.Failed,
		"duration", report.Elapsed,
	)
	return report, nil
}

func (s *Summarizer) summarizeSegment(ctx context.Context, seg chunker.Segment) Record {
	rec := Record{SequenceID: seg.SequenceID, SourcePage: seg.SourcePage}

	text, err := prompt.SectionSummary.Render(prompt.Values{"content": seg.Text})
	if err != nil {
		rec.Err = err
		return rec
	}

	out, err := s.model.Generate(ctx, text)
	if err != nil {
		rec.Err = err
		return rec
	}

	summary := s.flattener.Flatten(markdown.StripReasoning(out))
	if strings.TrimSpace(summary) == "" {
		rec.Err = fmt.Errorf("%w: chunk %d", ErrEmptySummary, seg.SequenceID)
		return rec
	}

	rec.Summary = summary
	rec.Succeeded = true
	return rec
}
