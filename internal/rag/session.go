// Package rag answers questions about one loaded document by retrieving its
// most relevant segments and grounding the model on them.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/index"
	"github.com/bull/docqa/internal/metrics"
	"github.com/bull/docqa/internal/prompt"
)

const (
	// DefaultChunkSize and DefaultOverlap favour few, context-rich index entries.
	DefaultChunkSize = 7500
	DefaultOverlap   = 100

	// DefaultTopK is the number of segments retrieved per question.
	DefaultTopK = 4
)

// Index builds, queries and destroys per-document collections.
type Index interface {
	Build(ctx context.Context, segments []chunker.Segment) (*index.Collection, error)
	Query(ctx context.Context, coll *index.Collection, question string, k int) (index.Result, error)
	Destroy(ctx context.Context, coll *index.Collection) error
}

// Config controls chunking and retrieval for a session.
type Config struct {
	ChunkSize int
	Overlap   int
	TopK      int
}

// QueryAnswer is a generated answer with the pages of the segments it was
// grounded on, 0-based and sorted ascending.
type QueryAnswer struct {
	Text       string
	CitedPages []int
}

// Status is a snapshot of the session for presentation layers.
type Status struct {
	ID         string
	State      State
	Source     string
	Pages      int
	Segments   int
	Collection string
}

// Session owns at most one live collection. Loading a new document destroys
// the previous collection before the new one is built, so answers are never
// grounded on a stale document.
type Session struct {
	id        string
	cfg       Config
	chunker   *chunker.Chunker
	extractor document.Extractor
	index     Index
	model     generation.Model
	sink      metrics.Sink
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
	doc   *document.Document
	coll  *index.Collection
}

// NewSession creates an empty session. Zero config values select the defaults;
// a nil sink discards metrics.
func NewSession(
	cfg Config,
	extractor document.Extractor,
	idx Index,
	model generation.Model,
	sink metrics.Sink,
	logger *slog.Logger,
) (*Session, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
		if cfg.Overlap == 0 {
			cfg.Overlap = DefaultOverlap
		}
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	ch, err := chunker.New(cfg.ChunkSize, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	return &Session{
		id:        id,
		cfg:       cfg,
		chunker:   ch,
		extractor: extractor,
		index:     idx,
		model:     model,
		sink:      sink,
		logger:    logger.With("session", id),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Document returns the loaded document, or nil before a successful load.
func (s *Session) Document() *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{ID: s.id, State: s.state}
	if s.doc != nil {
		st.Source = s.doc.Source
		st.Pages = s.doc.PageCount()
	}
	if s.coll != nil {
		st.Segments = s.coll.Segments()
		st.Collection = s.coll.Name()
	}
	return st
}

// Load extracts the document at path and activates it.
func (s *Session) Load(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked(ctx)

	doc, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return err
	}
	return s.activateLocked(ctx, doc)
}

// LoadDocument activates an already extracted document.
func (s *Session) LoadDocument(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked(ctx)
	return s.activateLocked(ctx, doc)
}

func (s *Session) activateLocked(ctx context.Context, doc *document.Document) error {
	s.doc = doc
	s.state = DocumentLoaded
	s.logger.Info("Document loaded", "source", doc.Source, "pages", doc.PageCount())

	segments := s.chunker.Split(doc)
	coll, err := s.index.Build(ctx, segments)
	if err != nil {
		return err
	}
	s.coll = coll
	s.state = Indexed

	s.state = Ready
	s.logger.Info("Session ready",
		"collection", coll.Name(),
		"segments", coll.Segments(),
	)
	return nil
}

// teardownLocked destroys the live collection and resets the session.
func (s *Session) teardownLocked(ctx context.Context) {
	if s.coll != nil {
		if err := s.index.Destroy(context.WithoutCancel(ctx), s.coll); err != nil {
			s.logger.Warn("Failed to destroy collection", "collection", s.coll.Name(), "error", err)
		}
	}
	s.coll = nil
	s.doc = nil
	s.state = Uninitialized
}

// Close destroys the live collection. The session can be loaded again afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.coll != nil {
		err = s.index.Destroy(context.WithoutCancel(ctx), s.coll)
	}
	s.coll = nil
	s.doc = nil
	s.state = Uninitialized
	return err
}

// retrieve runs the question against the live collection.
func (s *Session) retrieve(ctx context.Context, question string) (index.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != Ready {
		return index.Result{}, fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	if strings.TrimSpace(question) == "" {
		return index.Result{}, ErrEmptyQuestion
	}
	return s.index.Query(ctx, s.coll, question, s.cfg.TopK)
}

// Sources returns the segments that would ground an answer to question.
// On failure it returns an empty slice and the error.
func (s *Session) Sources(ctx context.Context, question string) ([]chunker.Segment, error) {
	result, err := s.retrieve(ctx, question)
	if err != nil {
		return []chunker.Segment{}, err
	}
	return result.Segments(), nil
}

// Answer retrieves context for question and generates a grounded answer.
func (s *Session) Answer(ctx context.Context, question string) (*QueryAnswer, error) {
	start := time.Now()

	result, text, err := s.prepare(ctx, question)
	if err != nil {
		s.recordQuery(ctx, start, 0, 0)
		return nil, err
	}

	out, err := s.model.Generate(ctx, text)
	if err != nil {
		s.recordQuery(ctx, start, 0, len(result))
		return nil, err
	}

	answer := &QueryAnswer{Text: out, CitedPages: CitedPages(result)}
	s.recordQuery(ctx, start, len(out), len(result))
	s.logger.Info("Answered question", "retrieved", len(result), "pages", answer.CitedPages, "duration", time.Since(start))
	return answer, nil
}

// AnswerStream is like Answer but streams the answer text. Cited pages are
// available from the returned stream once it is exhausted.
func (s *Session) AnswerStream(ctx context.Context, question string) (*AnswerStream, error) {
	start := time.Now()

	result, text, err := s.prepare(ctx, question)
	if err != nil {
		s.recordQuery(ctx, start, 0, 0)
		return nil, err
	}

	stream, err := s.model.GenerateStream(ctx, text)
	if err != nil {
		s.recordQuery(ctx, start, 0, len(result))
		return nil, err
	}

	return &AnswerStream{
		ctx:     ctx,
		stream:  stream,
		pages:   CitedPages(result),
		started: start,
		session: s,
		hits:    len(result),
	}, nil
}

// prepare retrieves context and renders the grounded prompt.
func (s *Session) prepare(ctx context.Context, question string) (index.Result, string, error) {
	result, err := s.retrieve(ctx, question)
	if err != nil {
		return nil, "", err
	}

	texts := make([]string, len(result))
	for i, hit := range result {
		texts[i] = hit.Segment.Text
	}
	text, err := prompt.GroundedAnswer.Render(prompt.Values{
		"context":  prompt.JoinContext(texts),
		"question": strings.TrimSpace(question),
	})
	if err != nil {
		return nil, "", err
	}
	return result, text, nil
}

func (s *Session) recordQuery(ctx context.Context, start time.Time, answerLen, retrieved int) {
	s.sink.Record(context.WithoutCancel(ctx), metrics.Event{
		Job: metrics.JobQuery,
		Gauges: map[string]float64{
			"rag_request_count":      1,
			"rag_processing_seconds": time.Since(start).Seconds(),
			"rag_answer_length":      float64(answerLen),
			"rag_retrieved_segments": float64(retrieved),
		},
	})
}

// CitedPages returns the sorted unique source pages of the retrieved segments.
func CitedPages(result index.Result) []int {
	seen := make(map[int]struct{}, len(result))
	pages := make([]int, 0, len(result))
	for _, hit := range result {
		if _, ok := seen[hit.Segment.SourcePage]; ok {
			continue
		}
		seen[hit.Segment.SourcePage] = struct{}{}
		pages = append(pages, hit.Segment.SourcePage)
	}
	sort.Ints(pages)
	return pages
}
