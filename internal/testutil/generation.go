package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/metrics"
)

// FakeGenerator answers prompts from a script. It is safe for concurrent use.
type FakeGenerator struct {
	mu      sync.Mutex
	prompts []string

	// Reply builds the completion for a prompt. When nil, the generator
	// echoes "answer" for every prompt.
	Reply func(prompt string) (string, error)
	// Fragments splits a streamed reply; when nil, replies stream word by word.
	Fragments func(reply string) []string
}

// Prompts returns every prompt received so far, in call order.
func (g *FakeGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *FakeGenerator) reply(prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Reply == nil {
		return "answer", nil
	}
	return g.Reply(prompt)
}

// Generate returns the scripted reply. Errors are wrapped as generation errors.
func (g *FakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", generation.ErrGeneration, err)
	}
	out, err := g.reply(prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", generation.ErrGeneration, err)
	}
	return out, nil
}

// GenerateStream streams the scripted reply as fragments.
func (g *FakeGenerator) GenerateStream(ctx context.Context, prompt string) (generation.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrGeneration, err)
	}
	out, err := g.reply(prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrGeneration, err)
	}

	var frags []string
	if g.Fragments != nil {
		frags = g.Fragments(out)
	} else {
		frags = SplitWords(out)
	}
	return &FakeStream{ctx: ctx, fragments: frags}, nil
}

// SplitWords splits text into fragments that keep their trailing space.
func SplitWords(text string) []string {
	var out []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// FakeStream yields a fixed list of fragments. It stops when its context is
// cancelled or when it is closed.
type FakeStream struct {
	ctx       context.Context
	fragments []string
	pos       int
	current   string
	err       error

	mu     sync.Mutex
	closed bool
}

// NewFakeStream creates a stream over fragments.
func NewFakeStream(ctx context.Context, fragments ...string) *FakeStream {
	return &FakeStream{ctx: ctx, fragments: fragments}
}

func (s *FakeStream) Next() bool {
	if s.Closed() || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = fmt.Errorf("%w: %w", generation.ErrGeneration, err)
		return false
	}
	if s.pos >= len(s.fragments) {
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *FakeStream) Current() string { return s.current }

func (s *FakeStream) Err() error { return s.err }

func (s *FakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Produced returns how many fragments have been handed out.
func (s *FakeStream) Produced() int { return s.pos }

// FakeExtractor serves documents from memory keyed by path.
type FakeExtractor struct {
	Docs map[string]*document.Document
}

// Extract returns the stored document or ErrDocumentLoad.
func (e *FakeExtractor) Extract(ctx context.Context, path string) (*document.Document, error) {
	doc, ok := e.Docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such file", document.ErrDocumentLoad, path)
	}
	return doc, nil
}

// NewDocument builds a document whose pages hold the given texts, indexed from 0.
func NewDocument(source string, pages ...string) *document.Document {
	doc := &document.Document{Source: source, Pages: make([]document.Page, len(pages))}
	for i, text := range pages {
		doc.Pages[i] = document.Page{Index: i, Text: text}
	}
	return doc
}

// RecordingSink keeps every event it receives.
type RecordingSink struct {
	mu     sync.Mutex
	events []metrics.Event
}

// Record stores the event.
func (s *RecordingSink) Record(_ context.Context, event metrics.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns the recorded events in order.
func (s *RecordingSink) Events() []metrics.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]metrics.Event(nil), s.events...)
}
