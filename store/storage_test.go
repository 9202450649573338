package store

import (
	"context"
	"testing"

	"vectorchat/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter records inserted chunks per source name, standing in for
// the Postgres row writer behind the batch ingest loop.
type fakeWriter struct {
	chunks    map[string][]*types.Chunk
	insertErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{chunks: make(map[string][]*types.Chunk)}
}

func (f *fakeWriter) deleteDocumentChunks(ctx context.Context, sourceName string) (int64, error) {
	deleted := int64(len(f.chunks[sourceName]))
	delete(f.chunks, sourceName)
	return deleted, nil
}

func (f *fakeWriter) insertChunk(ctx context.Context, chunk *types.Chunk) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.chunks[chunk.SourceName] = append(f.chunks[chunk.SourceName], chunk)
	return nil
}

// flakyEmbedder fails on the listed call numbers (1-based) and succeeds
// otherwise.
type flakyEmbedder struct {
	failOn map[int]bool
	calls  int
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.failOn[e.calls] {
		return nil, &types.ServiceError{Kind: types.KindRateLimited, Message: "rate limited"}
	}
	return []float32{1, 0, 0}, nil
}

func TestReplaceChunks_PartialEmbeddingFailure(t *testing.T) {
	w := newFakeWriter()
	embedder := &flakyEmbedder{failOn: map[int]bool{2: true, 4: true}}
	chunks := []string{"one", "two", "three", "four", "five"}

	result, err := replaceChunks(context.Background(), w, embedder, 0, "doc.txt", "Doc", chunks, nil)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ChunksAdded)
	assert.Equal(t, 5, result.TotalChunks)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "chunk 2")
	assert.Contains(t, result.Errors[1], "chunk 4")

	stored := w.chunks["doc.txt"]
	require.Len(t, stored, 3)
	assert.Equal(t, "one", stored[0].Content)
	assert.Equal(t, "three", stored[1].Content)
	assert.Equal(t, "five", stored[2].Content)
}

func TestReplaceChunks_SecondReplaceWins(t *testing.T) {
	w := newFakeWriter()
	embedder := &flakyEmbedder{}

	first, err := replaceChunks(context.Background(), w, embedder, 0, "doc.txt", "Doc", []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.DeletedOld)

	second, err := replaceChunks(context.Background(), w, embedder, 0, "doc.txt", "Doc", []string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.DeletedOld)
	assert.Equal(t, 2, second.ChunksAdded)

	stored := w.chunks["doc.txt"]
	require.Len(t, stored, 2)
	assert.Equal(t, "x", stored[0].Content)
	assert.Equal(t, "y", stored[1].Content)
	assert.Equal(t, 0, stored[0].Index)
	assert.Equal(t, 1, stored[1].Index)
}

func TestReplaceChunks_AllEmbeddingsFail(t *testing.T) {
	w := newFakeWriter()
	embedder := &flakyEmbedder{failOn: map[int]bool{1: true, 2: true}}

	result, err := replaceChunks(context.Background(), w, embedder, 0, "doc.txt", "Doc", []string{"a", "b"}, nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.ChunksAdded)
	assert.Len(t, result.Errors, 2)
	assert.Empty(t, w.chunks["doc.txt"])
}

func TestReplaceChunks_InsertFailureAborts(t *testing.T) {
	w := newFakeWriter()
	w.insertErr = &types.StoreUnavailableError{Err: context.DeadlineExceeded}

	_, err := replaceChunks(context.Background(), w, &flakyEmbedder{}, 0, "doc.txt", "Doc", []string{"a", "b"}, nil)

	var unavailable *types.StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestReplaceChunks_TitleDefaultsToSourceName(t *testing.T) {
	w := newFakeWriter()

	result, err := replaceChunks(context.Background(), w, &flakyEmbedder{}, 0, "doc.txt", "", []string{"a"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "doc.txt", result.Title)
	assert.Equal(t, "doc.txt", w.chunks["doc.txt"][0].Title)
	assert.NotNil(t, w.chunks["doc.txt"][0].Metadata)
}
