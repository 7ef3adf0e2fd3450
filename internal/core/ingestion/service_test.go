package ingestion

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

type stubRepo struct {
	createdDoc     *Document
	stored         *Document
	replacedChunks []*Chunk
	replaceErr     error
	deleted        []uuid.UUID
	deleteErr      error

	repairChunks   []*Chunk
	updatedChunks  map[uuid.UUID][]float32
	updateChunkErr error
}

func (r *stubRepo) CreateDocument(ctx context.Context, doc *Document) (*Document, error) {
	created := *doc
	created.ID = uuid.New()
	r.createdDoc = &created
	return &created, nil
}

func (r *stubRepo) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error) {
	if r.stored == nil || r.stored.ID != id {
		return mo.None[*Document](), nil
	}
	return mo.Some(r.stored), nil
}

func (r *stubRepo) ListDocuments(ctx context.Context) ([]*Document, error) {
	return nil, nil
}

func (r *stubRepo) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	return r.deleteErr
}

func (r *stubRepo) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*Chunk) error {
	r.replacedChunks = chunks
	return r.replaceErr
}

func (r *stubRepo) ListChunksNeedingRepair(ctx context.Context, dimension int) ([]*Chunk, error) {
	return r.repairChunks, nil
}

func (r *stubRepo) UpdateChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error {
	if r.updateChunkErr != nil {
		return r.updateChunkErr
	}
	if r.updatedChunks == nil {
		r.updatedChunks = make(map[uuid.UUID][]float32)
	}
	r.updatedChunks[chunkID] = embedding
	return nil
}

type stubBatchEmbedder struct {
	dimension  int
	embedErr   error
	batchErr   error
	failTexts  map[string]bool
	batchCalls int
}

func (e *stubBatchEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.embedErr != nil {
		return nil, e.embedErr
	}
	if e.failTexts[text] {
		return nil, errors.New("embed failed")
	}
	return []float32{0.1, 0.2}, nil
}

func (e *stubBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{0.1, 0.2}
	}
	return embeddings, nil
}

func (e *stubBatchEmbedder) Dimension() int {
	if e.dimension > 0 {
		return e.dimension
	}
	return 2
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
}

func TestService_RegisterChunksAndStores(t *testing.T) {
	repo := &stubRepo{}
	embedder := &stubBatchEmbedder{}
	svc := NewService(repo, embedder, WithLogger(testLogger()), WithMaxChunkSize(40))

	result, err := svc.Register(context.Background(), RegisterParams{
		FileName:      "homeowners.pdf",
		FileType:      ".pdf",
		FileSize:      1024,
		ExtractedText: "First sentence. Second sentence. Third sentence.",
	})
	require.NoError(t, err)

	assert.Equal(t, "homeowners.pdf", result.Document.FileName)
	assert.Equal(t, 2, result.TotalChunks)
	require.Len(t, repo.replacedChunks, 2)

	for i, chunk := range repo.replacedChunks {
		assert.Equal(t, result.Document.ID, chunk.DocumentID)
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.NotEmpty(t, chunk.Embedding)
	}
}

func TestService_RegisterValidatesInput(t *testing.T) {
	svc := NewService(&stubRepo{}, &stubBatchEmbedder{}, WithLogger(testLogger()))

	_, err := svc.Register(context.Background(), RegisterParams{ExtractedText: "text."})
	require.Error(t, err)

	_, err = svc.Register(context.Background(), RegisterParams{FileName: "a.pdf"})
	require.Error(t, err)
}

func TestService_RegisterFailsWhenEmbeddingFails(t *testing.T) {
	repo := &stubRepo{}
	embedder := &stubBatchEmbedder{batchErr: errors.New("api down")}
	svc := NewService(repo, embedder, WithLogger(testLogger()))

	_, err := svc.Register(context.Background(), RegisterParams{
		FileName:      "a.pdf",
		ExtractedText: "Some sentence.",
	})
	require.Error(t, err)
	assert.Empty(t, repo.replacedChunks)
}

func TestService_ReprocessRebuildsFromStoredText(t *testing.T) {
	docID := uuid.New()
	repo := &stubRepo{
		stored: &Document{
			ID:            docID,
			FileName:      "auto.pdf",
			ExtractedText: "Liability coverage applies. Collision coverage applies.",
		},
	}
	svc := NewService(repo, &stubBatchEmbedder{}, WithLogger(testLogger()))

	result, err := svc.Reprocess(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, docID, result.Document.ID)
	assert.Equal(t, 1, result.TotalChunks)
	require.Len(t, repo.replacedChunks, 1)
}

func TestService_ReprocessUnknownDocument(t *testing.T) {
	svc := NewService(&stubRepo{}, &stubBatchEmbedder{}, WithLogger(testLogger()))

	_, err := svc.Reprocess(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestService_RepairEmbeddingsCountsFixesAndErrors(t *testing.T) {
	good := &Chunk{ID: uuid.New(), Content: "good chunk"}
	bad := &Chunk{ID: uuid.New(), Content: "bad chunk"}
	repo := &stubRepo{repairChunks: []*Chunk{good, bad}}
	embedder := &stubBatchEmbedder{failTexts: map[string]bool{"bad chunk": true}}
	svc := NewService(repo, embedder, WithLogger(testLogger()))

	result, err := svc.RepairEmbeddings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalChunks)
	assert.Equal(t, 1, result.FixedCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, repo.updatedChunks, good.ID)
	assert.NotContains(t, repo.updatedChunks, bad.ID)
}

func TestService_RepairEmbeddingsNothingToRepair(t *testing.T) {
	svc := NewService(&stubRepo{}, &stubBatchEmbedder{}, WithLogger(testLogger()))

	result, err := svc.RepairEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalChunks)
	assert.Equal(t, 0, result.FixedCount)
	assert.Equal(t, 0, result.ErrorCount)
}

func TestService_DeleteDelegatesToRepository(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, &stubBatchEmbedder{}, WithLogger(testLogger()))

	id := uuid.New()
	require.NoError(t, svc.Delete(context.Background(), id))
	assert.Equal(t, []uuid.UUID{id}, repo.deleted)
}

func TestService_DeletePropagatesNotFound(t *testing.T) {
	repo := &stubRepo{deleteErr: ErrDocumentNotFound}
	svc := NewService(repo, &stubBatchEmbedder{}, WithLogger(testLogger()))

	err := svc.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}
