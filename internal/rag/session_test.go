package rag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/document"
	"github.com/bull/docqa/internal/generation"
	"github.com/bull/docqa/internal/index"
	"github.com/bull/docqa/internal/metrics"
	"github.com/bull/docqa/internal/storage"
	"github.com/bull/docqa/internal/testutil"
)

const (
	shippingSentence = "The shipping schedule covers delivery times across regions. "
	refundSentence   = "Our refund policy allows returns within thirty days. "
	warrantySentence = "Warranty coverage protects hardware against manufacturing defects. "
)

// manualDoc has three pages; only the middle one talks about refunds and it
// is long enough to be cut into two segments at 500/50.
func manualDoc() *document.Document {
	return testutil.NewDocument("manual.pdf",
		strings.Repeat(shippingSentence, 7),
		strings.Repeat(refundSentence, 17),
		strings.Repeat(warrantySentence, 14),
	)
}

type fixture struct {
	session  *Session
	store    *storage.MemoryStorage
	embedder *testutil.HashEmbedder
	model    *testutil.FakeGenerator
	sink     *testutil.RecordingSink
}

func newFixture(t *testing.T, docs map[string]*document.Document) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStorage(),
		embedder: &testutil.HashEmbedder{},
		model:    &testutil.FakeGenerator{Reply: func(string) (string, error) { return "The refund window is thirty days.", nil }},
		sink:     &testutil.RecordingSink{},
	}
	adapter := index.NewAdapter(f.embedder, f.store, "", nil)
	session, err := NewSession(
		Config{ChunkSize: 500, Overlap: 50, TopK: 2},
		&testutil.FakeExtractor{Docs: docs},
		adapter,
		f.model,
		f.sink,
		nil,
	)
	require.NoError(t, err)
	f.session = session
	return f
}

func TestSession_AnswerCitesRetrievedPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})

	require.NoError(t, f.session.Load(ctx, "manual.pdf"))
	assert.Equal(t, Ready, f.session.State())

	answer, err := f.session.Answer(ctx, "What is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, "The refund window is thirty days.", answer.Text)
	assert.Equal(t, []int{1}, answer.CitedPages)

	prompts := f.model.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question: What is the refund policy?")
	assert.Contains(t, prompts[0], "Our refund policy allows returns")
	assert.Contains(t, prompts[0], "I could not find the answer in the document")
	assert.NotContains(t, prompts[0], "shipping schedule")
}

func TestSession_CitationIgnoresAnswerText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	f.model.Reply = func(string) (string, error) { return "See page 1 and page 3.", nil }

	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	sources, err := f.session.Sources(ctx, "What is the refund policy?")
	require.NoError(t, err)
	require.Len(t, sources, 2)

	answer, err := f.session.Answer(ctx, "What is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, answer.CitedPages)
}

func TestSession_NotReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.session.Answer(ctx, "anything")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = f.session.AnswerStream(ctx, "anything")
	assert.ErrorIs(t, err, ErrNotReady)

	sources, err := f.session.Sources(ctx, "anything")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NotNil(t, sources)
	assert.Empty(t, sources)

	assert.Empty(t, f.model.Prompts())
}

func TestSession_EmptyQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	_, err := f.session.Answer(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestSession_BlankQuestionBeforeLoadIsNotReady(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.session.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.NotErrorIs(t, err, ErrEmptyQuestion)
}

func TestSession_LoadMissingDocument(t *testing.T) {
	f := newFixture(t, nil)

	err := f.session.Load(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, document.ErrDocumentLoad)
	assert.Equal(t, Uninitialized, f.session.State())
}

func TestSession_LoadIndexFailure(t *testing.T) {
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	f.embedder.Err = testutil.ErrUnavailable

	err := f.session.Load(context.Background(), "manual.pdf")
	assert.ErrorIs(t, err, index.ErrIndexBuild)
	assert.Equal(t, DocumentLoaded, f.session.State())

	_, err = f.session.Answer(context.Background(), "refund")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_RetrievalFailureKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	f.embedder.Err = testutil.ErrUnavailable
	_, err := f.session.Answer(ctx, "What is the refund policy?")
	assert.ErrorIs(t, err, index.ErrRetrieval)
	assert.Empty(t, f.model.Prompts(), "no ungrounded fallback generation")

	f.embedder.Err = nil
	answer, err := f.session.Answer(ctx, "What is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, answer.CitedPages)
}

func TestSession_GenerationFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	f.model.Reply = func(string) (string, error) { return "", testutil.ErrUnavailable }
	_, err := f.session.Answer(ctx, "refund")
	assert.ErrorIs(t, err, generation.ErrGeneration)
	assert.Equal(t, Ready, f.session.State())
}

func TestSession_LoadingNewDocumentDestroysPrevious(t *testing.T) {
	ctx := context.Background()
	docA := testutil.NewDocument("a.pdf", strings.Repeat(refundSentence, 3))
	docB := testutil.NewDocument("b.pdf", strings.Repeat(warrantySentence, 3))
	f := newFixture(t, map[string]*document.Document{"a.pdf": docA, "b.pdf": docB})

	require.NoError(t, f.session.Load(ctx, "a.pdf"))
	collA := f.session.Status().Collection
	require.True(t, f.store.HasCollection(collA))

	require.NoError(t, f.session.Load(ctx, "b.pdf"))
	status := f.session.Status()
	assert.NotEqual(t, collA, status.Collection)
	assert.False(t, f.store.HasCollection(collA))
	assert.Equal(t, "b.pdf", status.Source)

	sources, err := f.session.Sources(ctx, "What is the refund policy?")
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	for _, seg := range sources {
		assert.Contains(t, seg.Text, "Warranty")
		assert.NotContains(t, seg.Text, "refund")
	}
}

func TestSession_FailedReloadLeavesNoStaleCollection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))
	old := f.session.Status().Collection

	err := f.session.Load(ctx, "missing.pdf")
	require.ErrorIs(t, err, document.ErrDocumentLoad)
	assert.False(t, f.store.HasCollection(old))

	_, err = f.session.Answer(ctx, "refund")
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))
	coll := f.session.Status().Collection

	require.NoError(t, f.session.Close(ctx))
	require.NoError(t, f.session.Close(ctx))
	assert.Equal(t, Uninitialized, f.session.State())
	assert.False(t, f.store.HasCollection(coll))
	assert.Nil(t, f.session.Document())
}

func TestSession_Status(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})

	st := f.session.Status()
	assert.Equal(t, Uninitialized, st.State)
	assert.Equal(t, f.session.ID(), st.ID)

	require.NoError(t, f.session.Load(ctx, "manual.pdf"))
	st = f.session.Status()
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, "manual.pdf", st.Source)
	assert.Equal(t, 3, st.Pages)
	assert.Greater(t, st.Segments, 3)
	assert.True(t, strings.HasPrefix(st.Collection, index.DefaultCollectionPrefix+"-"))
}

func TestSession_RecordsQueryMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	_, err := f.session.Answer(ctx, "What is the refund policy?")
	require.NoError(t, err)

	events := f.sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, metrics.JobQuery, events[0].Job)
	assert.Equal(t, 1.0, events[0].Gauges["rag_request_count"])
	assert.Equal(t, 2.0, events[0].Gauges["rag_retrieved_segments"])
	assert.Equal(t, float64(len("The refund window is thirty days.")), events[0].Gauges["rag_answer_length"])
}

func TestAnswerStream_FragmentsThenCitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	stream, err := f.session.AnswerStream(ctx, "What is the refund policy?")
	require.NoError(t, err)

	var fragments []string
	for stream.Next() {
		assert.Nil(t, stream.CitedPages(), "citations are attached after the stream completes")
		fragments = append(fragments, stream.Current())
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, []string{"The ", "refund ", "window ", "is ", "thirty ", "days."}, fragments)
	assert.Equal(t, []int{1}, stream.CitedPages())

	answer := stream.Answer()
	assert.Equal(t, "The refund window is thirty days.", answer.Text)
	assert.Equal(t, []int{1}, answer.CitedPages)

	require.NoError(t, stream.Close())
	assert.Len(t, f.sink.Events(), 1)
}

func TestAnswerStream_CancellationStopsProduction(t *testing.T) {
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(context.Background(), "manual.pdf"))

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.session.AnswerStream(ctx, "What is the refund policy?")
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "The ", stream.Current())
	cancel()

	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), generation.ErrGeneration)
	assert.Nil(t, stream.CitedPages())
	assert.Equal(t, "The ", stream.Answer().Text)

	// The collection is untouched and the next question works.
	assert.Equal(t, Ready, f.session.State())
	answer, err := f.session.Answer(context.Background(), "What is the refund policy?")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, answer.CitedPages)
}

func TestAnswerStream_CloseEarly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	stream, err := f.session.AnswerStream(ctx, "What is the refund policy?")
	require.NoError(t, err)
	require.True(t, stream.Next())

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.False(t, stream.Next())
	assert.Nil(t, stream.CitedPages())
	assert.Len(t, f.sink.Events(), 1)
}

func TestAnswerStream_CloseFromAnotherGoroutine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]*document.Document{"manual.pdf": manualDoc()})
	require.NoError(t, f.session.Load(ctx, "manual.pdf"))

	stream, err := f.session.AnswerStream(ctx, "What is the refund policy?")
	require.NoError(t, err)

	first := make(chan struct{})
	consumed := make(chan int)
	go func() {
		n := 0
		for stream.Next() {
			n++
			if n == 1 {
				close(first)
			}
			time.Sleep(5 * time.Millisecond)
		}
		consumed <- n
	}()

	<-first
	require.NoError(t, stream.Close())

	select {
	case n := <-consumed:
		assert.Less(t, n, 6)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after Close")
	}
	assert.Nil(t, stream.CitedPages())
	assert.True(t, strings.HasPrefix("The refund window is thirty days.", stream.Answer().Text))
	assert.Len(t, f.sink.Events(), 1)
}

func TestCitedPages(t *testing.T) {
	result := index.Result{
		{Segment: chunker.Segment{SourcePage: 4}, Rank: 1},
		{Segment: chunker.Segment{SourcePage: 1}, Rank: 2},
		{Segment: chunker.Segment{SourcePage: 4}, Rank: 3},
		{Segment: chunker.Segment{SourcePage: 0}, Rank: 4},
	}
	assert.Equal(t, []int{0, 1, 4}, CitedPages(result))
	assert.Empty(t, CitedPages(nil))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "document_loaded", DocumentLoaded.String())
	assert.Equal(t, "indexed", Indexed.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "unknown", State(42).String())
}
