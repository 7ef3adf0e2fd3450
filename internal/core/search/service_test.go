package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearchRepo struct {
	results     []*ChunkResult
	err         error
	lastLimit   int
	lastScope   mo.Option[uuid.UUID]
	lastNameIDs []uuid.UUID
	names       map[uuid.UUID]string
	namesErr    error
}

func (r *stubSearchRepo) SearchChunks(ctx context.Context, queryVector []float32, limit int, documentID mo.Option[uuid.UUID]) ([]*ChunkResult, error) {
	r.lastLimit = limit
	r.lastScope = documentID
	return r.results, r.err
}

func (r *stubSearchRepo) ListDocumentNames(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	r.lastNameIDs = documentIDs
	return r.names, r.namesErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
}

func TestChunkSearchService_SearchAppliesDefaultLimit(t *testing.T) {
	repo := &stubSearchRepo{
		results: []*ChunkResult{{
			ChunkID:    uuid.New(),
			DocumentID: uuid.New(),
			ChunkIndex: 0,
			Content:    "coverage details",
			Similarity: 0.9,
		}},
	}
	svc := NewChunkSearchService(repo, WithSearchLogger(testLogger()))

	results, err := svc.Search(context.Background(), SearchParams{
		QueryVector: []float32{0.1, 0.2},
		MaxResults:  0, // デフォルトが適用される
		DocumentID:  mo.None[uuid.UUID](),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, DefaultMaxResults, repo.lastLimit)
}

func TestChunkSearchService_SearchRequiresQueryVector(t *testing.T) {
	svc := NewChunkSearchService(&stubSearchRepo{}, WithSearchLogger(testLogger()))

	_, err := svc.Search(context.Background(), SearchParams{})
	require.Error(t, err)
}

func TestChunkSearchService_SearchPassesDocumentScope(t *testing.T) {
	repo := &stubSearchRepo{}
	svc := NewChunkSearchService(repo, WithSearchLogger(testLogger()))

	docID := uuid.New()
	_, err := svc.Search(context.Background(), SearchParams{
		QueryVector: []float32{0.1},
		MaxResults:  5,
		DocumentID:  mo.Some(docID),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, repo.lastLimit)
	assert.Equal(t, mo.Some(docID), repo.lastScope)
}

func TestChunkSearchService_SearchWrapsRepositoryError(t *testing.T) {
	repo := &stubSearchRepo{err: errors.New("connection refused")}
	svc := NewChunkSearchService(repo, WithSearchLogger(testLogger()))

	_, err := svc.Search(context.Background(), SearchParams{QueryVector: []float32{0.1}})
	require.Error(t, err)
	// 空結果ではなくErrIndexUnavailableとして伝播する
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestChunkSearchService_DocumentNamesDeduplicatesIDs(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()
	repo := &stubSearchRepo{
		names: map[uuid.UUID]string{docA: "policy-a.pdf", docB: "policy-b.pdf"},
	}
	svc := NewChunkSearchService(repo, WithSearchLogger(testLogger()))

	results := []*ChunkResult{
		{ChunkID: uuid.New(), DocumentID: docA},
		{ChunkID: uuid.New(), DocumentID: docB},
		{ChunkID: uuid.New(), DocumentID: docA},
	}

	names, err := svc.DocumentNames(context.Background(), results)
	require.NoError(t, err)
	assert.Len(t, names, 2)
	assert.ElementsMatch(t, []uuid.UUID{docA, docB}, repo.lastNameIDs)
}
