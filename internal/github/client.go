// Package github downloads PDF documents stored in GitHub repositories.
package github

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a new GitHub client with rate limiting. A non-empty token
// authenticates the client for higher rate limits and private repositories.
func NewClient(ctx context.Context, token string) (*Client, error) {
	// Handles both primary and secondary (abuse detection) rate limits by
	// sleeping until the limit resets
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}

// WithBaseURL points the client at another API root, such as a GitHub
// Enterprise server.
func (c *Client) WithBaseURL(baseURL string) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	c.BaseURL = u
	return c, nil
}
