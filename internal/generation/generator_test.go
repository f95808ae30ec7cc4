package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/embedding"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeChatServer answers /chat/completions. Non-streaming requests get
// reply; streaming requests get reply split into fragments.
type fakeChatServer struct {
	reply     string
	fragments []string
	status    int
	failFirst int32
	calls     atomic.Int32
	lastReq   chatRequest
}

func (f *fakeChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.calls.Add(1)
	if r.URL.Path != "/chat/completions" {
		http.NotFound(w, r)
		return
	}
	if f.status != 0 && n <= f.failFirst {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
		return
	}

	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.lastReq = req

	if !req.Stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": f.reply},
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	writeChunk := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "delta": delta, "finish_reason": finish}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	writeChunk(map[string]any{"role": "assistant", "content": ""}, nil)
	for _, frag := range f.fragments {
		writeChunk(map[string]any{"content": frag}, nil)
	}
	writeChunk(map[string]any{}, "stop")
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newTestGenerator(t *testing.T, srv *fakeChatServer) *Generator {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client, err := embedding.NewClient(embedding.ClientConfig{BaseURL: ts.URL, APIKey: "test"})
	require.NoError(t, err)
	return NewGenerator(client, "")
}

func TestGenerate(t *testing.T) {
	srv := &fakeChatServer{reply: "The refund window is 30 days."}
	gen := newTestGenerator(t, srv)

	out, err := gen.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "The refund window is 30 days.", out)
	assert.Equal(t, DefaultModel, srv.lastReq.Model)
	require.Len(t, srv.lastReq.Messages, 1)
	assert.Equal(t, "user", srv.lastReq.Messages[0].Role)
	assert.Equal(t, "prompt text", srv.lastReq.Messages[0].Content)
}

func TestGenerate_EmptyResponse(t *testing.T) {
	gen := newTestGenerator(t, &fakeChatServer{reply: ""})

	_, err := gen.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	srv := &fakeChatServer{reply: "ok", status: http.StatusServiceUnavailable, failFirst: 1}
	gen := newTestGenerator(t, srv)

	out, err := gen.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), srv.calls.Load())
}

func TestGenerate_PermanentError(t *testing.T) {
	srv := &fakeChatServer{status: http.StatusNotFound, failFirst: 100}
	gen := newTestGenerator(t, srv)

	_, err := gen.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, int32(1), srv.calls.Load())
}

func TestGenerateStream_FragmentsInOrder(t *testing.T) {
	srv := &fakeChatServer{fragments: []string{"The ", "refund ", "window ", "is 30 days."}}
	gen := newTestGenerator(t, srv)

	stream, err := gen.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)

	var got []string
	for stream.Next() {
		got = append(got, stream.Current())
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())

	assert.Equal(t, srv.fragments, got)
	assert.True(t, srv.lastReq.Stream)
}

func TestGenerateStream_EmptyIsError(t *testing.T) {
	gen := newTestGenerator(t, &fakeChatServer{})

	stream, err := gen.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)

	out, err := Collect(stream)
	assert.Empty(t, out)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateStream_CloseStopsProduction(t *testing.T) {
	srv := &fakeChatServer{fragments: []string{"a", "b", "c"}}
	gen := newTestGenerator(t, srv)

	stream, err := gen.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "a", stream.Current())
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.False(t, stream.Next())
}

func TestGenerateStream_CancelledContext(t *testing.T) {
	gen := newTestGenerator(t, &fakeChatServer{fragments: []string{"a"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.GenerateStream(ctx, "prompt")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateStream_CancelledWhileConsuming(t *testing.T) {
	gen := newTestGenerator(t, &fakeChatServer{fragments: []string{"one ", "two ", "three"}})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := gen.GenerateStream(ctx, "prompt")
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	cancel()
	for stream.Next() {
	}
	assert.ErrorIs(t, stream.Err(), ErrGeneration)
	assert.ErrorIs(t, stream.Err(), context.Canceled)
}

func TestGenerate_CancelledContext(t *testing.T) {
	gen := newTestGenerator(t, &fakeChatServer{reply: "never"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.Generate(ctx, "prompt")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect(t *testing.T) {
	srv := &fakeChatServer{fragments: []string{"one ", "two ", "three"}}
	gen := newTestGenerator(t, srv)

	stream, err := gen.GenerateStream(context.Background(), "prompt")
	require.NoError(t, err)

	out, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "one two three", out)
}
