// Package generation wraps an OpenAI-compatible chat model behind single-shot
// and streaming text generation.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/bull/docqa/internal/embedding"
)

// DefaultModel is the chat model pulled by the local Ollama setup.
const DefaultModel = "deepseek-r1:1.5b"

// ErrGeneration is returned when the model server is unreachable or answers
// with an empty or invalid response. It is recoverable per call.
var ErrGeneration = errors.New("generation failed")

// Stream yields text fragments in the order the model produces them.
// It is single-pass; Close stops production and releases the connection.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Model is the generation capability used by the query engine and summarizer.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) (Stream, error)
}

// Generator produces completions through the chat completions API.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a generator for the given chat model.
// An empty model selects DefaultModel.
func NewGenerator(client *embedding.Client, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		client: client.Client(),
		model:  model,
	}
}

// Model returns the chat model name.
func (g *Generator) Model() string { return g.model }

func (g *Generator) params(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	}
}

// Generate returns the full completion for prompt. Rate limit and server
// errors are retried with exponential backoff.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var content string

	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, g.params(prompt))
		if err != nil {
			if embedding.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("response has no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(embedding.NewBackOff(), ctx)); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return "", fmt.Errorf("%w: %w", ErrGeneration, cerr)
		}
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if content == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}
	return content, nil
}

// GenerateStream starts a streaming completion. Errors surfacing while the
// stream is consumed are reported by Stream.Err as ErrGeneration.
func (g *Generator) GenerateStream(ctx context.Context, prompt string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	raw := g.client.Chat.Completions.NewStreaming(ctx, g.params(prompt))
	return &chatStream{ctx: ctx, raw: raw}, nil
}

// chatStream adapts the SSE chunk stream to text fragments, skipping chunks
// that carry no content (role headers, finish markers).
type chatStream struct {
	ctx     context.Context
	raw     *ssestream.Stream[openai.ChatCompletionChunk]
	current string
	emitted bool
	err     error
	closed  atomic.Bool
}

func (s *chatStream) Next() bool {
	if s.closed.Load() || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = fmt.Errorf("%w: %w", ErrGeneration, err)
		s.current = ""
		return false
	}
	for s.raw.Next() {
		chunk := s.raw.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.current = chunk.Choices[0].Delta.Content
		s.emitted = true
		return true
	}
	if err := s.ctx.Err(); err != nil {
		s.err = fmt.Errorf("%w: %w", ErrGeneration, err)
	} else if err := s.raw.Err(); err != nil {
		s.err = fmt.Errorf("%w: %w", ErrGeneration, err)
	} else if !s.emitted {
		s.err = fmt.Errorf("%w: empty response", ErrGeneration)
	}
	s.current = ""
	return false
}

func (s *chatStream) Current() string { return s.current }

func (s *chatStream) Err() error { return s.err }

func (s *chatStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.raw.Close()
}

// Collect drains a stream and returns the concatenated fragments.
func Collect(stream Stream) (string, error) {
	defer stream.Close()

	var b strings.Builder
	for stream.Next() {
		b.WriteString(stream.Current())
	}
	return b.String(), stream.Err()
}
