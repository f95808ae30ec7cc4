package embedding

import (
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig describes an OpenAI-compatible endpoint. Ollama serves one at
// http://localhost:11434/v1 and ignores the API key.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client wraps the OpenAI client shared by embedding and chat generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for the configured endpoint.
// It returns an error if neither a base URL nor an API key is provided.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding client needs a base URL or an API key")
	}

	opts := []option.RequestOption{
		// Retries are handled by our own backoff loops
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., generation).
func (c *Client) Client() *openai.Client {
	return c.client
}
