package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	Backend     string `json:"backend"`
	Session     string `json:"session,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// HealthChecker interface defines the health check dependency.
// The vector stores and the index adapter implement this via Health().
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It checks vector store connectivity and returns appropriate status codes.
// state, when non-nil, reports the session state.
func NewHealthHandler(store HealthChecker, backend string, state func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		err := store.Health(ctx)

		response := HealthResponse{
			Backend:   backend,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if state != nil {
			response.Session = state()
		}

		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			response.Status = "unhealthy"
			response.VectorStore = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(response)
			return
		}

		response.Status = "healthy"
		response.VectorStore = "connected"
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
