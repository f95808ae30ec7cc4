package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model pulled by the local Ollama setup.
	DefaultModel = "znbang/bge:small-en-v1.5-q8_0"

	// DefaultBatchSize keeps request bodies small for local model servers.
	DefaultBatchSize = 64
)

// ErrEmptyResponse is returned when the server answers with fewer vectors than inputs.
var ErrEmptyResponse = errors.New("embedding response is empty")

// Embedder generates embeddings for text through an OpenAI-compatible API.
// It batches requests and retries with exponential backoff on rate limit and
// server overload errors.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
}

// NewEmbedder creates a new Embedder. An empty model selects DefaultModel and
// a batchSize of 0 selects DefaultBatchSize.
func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// GenerateEmbeddings generates one vector per text, in input order.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		batch := texts[i:end]

		embeddings, err := e.embedBatchWithRetry(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Rate limit (429) and 5xx responses are retried; anything else fails immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmptyResponse, len(resp.Data), len(texts)))
		}

		// Servers may return data out of order; place each vector by its index
		embeddings = make([][]float32, len(texts))
		for i, data := range resp.Data {
			idx := int(data.Index)
			if idx < 0 || idx >= len(texts) || embeddings[idx] != nil {
				idx = i
			}
			embeddings[idx] = toFloat32(data.Embedding)
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(NewBackOff(), ctx))
	return embeddings, err
}

// NewBackOff returns the exponential backoff policy shared by model server calls.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func NewBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// IsRetryable reports whether err is a rate limit (HTTP 429) or server-side (5xx) API error.
func IsRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
