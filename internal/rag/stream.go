package rag

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bull/docqa/internal/generation"
)

// AnswerStream delivers answer fragments in the order the model produces
// them. Next, Current and Err belong to a single consumer goroutine. Close and
// the accessors may be called from any goroutine; closing it or cancelling its
// context stops production without affecting the session.
type AnswerStream struct {
	ctx     context.Context
	stream  generation.Stream
	pages   []int
	started time.Time
	session *Session
	hits    int

	mu        sync.Mutex // guards text, done and completed
	text      strings.Builder
	done      bool
	completed bool
	closeOnce sync.Once
}

// Next advances to the next fragment.
func (a *AnswerStream) Next() bool {
	if a.isDone() {
		return false
	}
	if a.stream.Next() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.done {
			return false
		}
		a.text.WriteString(a.stream.Current())
		return true
	}

	a.mu.Lock()
	a.completed = !a.done && a.stream.Err() == nil
	a.mu.Unlock()
	a.finish()
	return false
}

func (a *AnswerStream) isDone() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Current returns the most recent fragment.
func (a *AnswerStream) Current() string {
	if a.isDone() {
		return ""
	}
	return a.stream.Current()
}

// Err returns the generation error that ended the stream, if any.
func (a *AnswerStream) Err() error { return a.stream.Err() }

// CitedPages returns the grounding pages once the stream has completed
// successfully, and nil before that.
func (a *AnswerStream) CitedPages() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.completed {
		return nil
	}
	return a.pages
}

// Answer returns the accumulated answer. CitedPages is empty until the
// stream has completed.
func (a *AnswerStream) Answer() *QueryAnswer {
	a.mu.Lock()
	text := a.text.String()
	a.mu.Unlock()
	return &QueryAnswer{Text: text, CitedPages: a.CitedPages()}
}

// Close stops production and releases the model connection. It is safe to
// call more than once and from another goroutine than the consumer.
func (a *AnswerStream) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.done = true
		length := a.text.Len()
		a.mu.Unlock()

		err = a.stream.Close()
		a.session.recordQuery(a.ctx, a.started, length, a.hits)
		a.session.logger.Info("Streamed answer",
			"retrieved", a.hits,
			"length", length,
			"duration", time.Since(a.started),
		)
	})
	return err
}

func (a *AnswerStream) finish() {
	_ = a.Close()
}
