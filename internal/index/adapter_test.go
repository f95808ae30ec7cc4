package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docqa/internal/chunker"
	"github.com/bull/docqa/internal/storage"
	"github.com/bull/docqa/internal/testutil"
)

func testSegments() []chunker.Segment {
	return []chunker.Segment{
		{Text: "Welcome to the store handbook.", SourcePage: 0, SequenceID: 0},
		{Text: "Our refund policy allows a refund within thirty days.", SourcePage: 2, SequenceID: 1},
		{Text: "Refund requests need the original receipt.", SourcePage: 2, SequenceID: 2},
		{Text: "Shipping is free for orders above fifty euros.", SourcePage: 3, SequenceID: 3},
	}
}

// failingStore wraps MemoryStorage, remembers created collections and fails upserts.
type failingStore struct {
	*storage.MemoryStorage
	created []string
}

func (f *failingStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	f.created = append(f.created, name)
	return f.MemoryStorage.CreateCollection(ctx, name, dimension)
}

func (f *failingStore) Upsert(ctx context.Context, name string, records []*storage.Record) error {
	return errors.New("disk full")
}

// halfCreateStore creates the collection and then fails, like a backend whose
// payload index setup errors after the collection exists.
type halfCreateStore struct {
	*storage.MemoryStorage
	created []string
}

func (h *halfCreateStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	h.created = append(h.created, name)
	if err := h.MemoryStorage.CreateCollection(ctx, name, dimension); err != nil {
		return err
	}
	return errors.New("create payload index: timeout")
}

func TestBuildAndQuery(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	adapter := NewAdapter(&testutil.HashEmbedder{}, store, "", nil)

	coll, err := adapter.Build(ctx, testSegments())
	require.NoError(t, err)
	assert.Equal(t, 4, coll.Segments())
	assert.Equal(t, testutil.HashDimension, coll.Dimension())
	assert.Contains(t, coll.Name(), DefaultCollectionPrefix+"-")
	assert.True(t, store.HasCollection(coll.Name()))

	result, err := adapter.Query(ctx, coll, "What is the refund policy?", 2)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, 1, result[0].Rank)
	assert.Equal(t, 2, result[1].Rank)
	for _, hit := range result {
		assert.Equal(t, 2, hit.Segment.SourcePage)
		assert.Contains(t, hit.Segment.Text, "efund")
	}
	assert.Len(t, result.Segments(), 2)
}

func TestQuery_KLargerThanCollection(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(&testutil.HashEmbedder{}, storage.NewMemoryStorage(), "test", nil)

	coll, err := adapter.Build(ctx, testSegments())
	require.NoError(t, err)

	result, err := adapter.Query(ctx, coll, "refund", 10)
	require.NoError(t, err)
	assert.Len(t, result, 4)
}

func TestBuild_RejectsEmptySegment(t *testing.T) {
	segments := append(testSegments(), chunker.Segment{Text: "  \n ", SourcePage: 4, SequenceID: 4})
	adapter := NewAdapter(&testutil.HashEmbedder{}, storage.NewMemoryStorage(), "", nil)

	_, err := adapter.Build(context.Background(), segments)
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestBuild_RejectsNoSegments(t *testing.T) {
	adapter := NewAdapter(&testutil.HashEmbedder{}, storage.NewMemoryStorage(), "", nil)

	_, err := adapter.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestBuild_EmbeddingUnavailable(t *testing.T) {
	store := storage.NewMemoryStorage()
	adapter := NewAdapter(&testutil.HashEmbedder{Err: testutil.ErrUnavailable}, store, "", nil)

	coll, err := adapter.Build(context.Background(), testSegments())
	assert.Nil(t, coll)
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestBuild_UpsertFailureRemovesPartialCollection(t *testing.T) {
	store := &failingStore{MemoryStorage: storage.NewMemoryStorage()}
	adapter := NewAdapter(&testutil.HashEmbedder{}, store, "partial", nil)

	coll, err := adapter.Build(context.Background(), testSegments())
	require.Error(t, err)
	assert.Nil(t, coll)
	assert.ErrorIs(t, err, ErrIndexBuild)

	require.Len(t, store.created, 1)
	assert.False(t, store.HasCollection(store.created[0]), "partial collection must be deleted")
}

func TestBuild_CreateFailureRemovesPartialCollection(t *testing.T) {
	store := &halfCreateStore{MemoryStorage: storage.NewMemoryStorage()}
	adapter := NewAdapter(&testutil.HashEmbedder{}, store, "half", nil)

	coll, err := adapter.Build(context.Background(), testSegments())
	require.Error(t, err)
	assert.Nil(t, coll)
	assert.ErrorIs(t, err, ErrIndexBuild)

	require.Len(t, store.created, 1)
	assert.False(t, store.HasCollection(store.created[0]), "collection created before the failure must be deleted")
}

func TestQuery_FailureReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	embedder := &testutil.HashEmbedder{}
	adapter := NewAdapter(embedder, storage.NewMemoryStorage(), "", nil)

	coll, err := adapter.Build(ctx, testSegments())
	require.NoError(t, err)

	embedder.Err = testutil.ErrUnavailable
	result, err := adapter.Query(ctx, coll, "refund", 2)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestDestroy_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	adapter := NewAdapter(&testutil.HashEmbedder{}, store, "", nil)

	coll, err := adapter.Build(ctx, testSegments())
	require.NoError(t, err)

	require.NoError(t, adapter.Destroy(ctx, coll))
	require.NoError(t, adapter.Destroy(ctx, coll))
	require.NoError(t, adapter.Destroy(ctx, nil))
	assert.True(t, coll.Destroyed())
	assert.False(t, store.HasCollection(coll.Name()))

	result, err := adapter.Query(ctx, coll, "refund", 2)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.Empty(t, result)
}
