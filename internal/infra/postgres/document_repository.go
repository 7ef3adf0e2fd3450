package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/ingestion"
)

// DocumentRepository はドキュメントとチャンクの永続化を提供する
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository は新しいDocumentRepositoryを作成する
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

// CreateDocument はドキュメントを保存して生成されたIDを含めて返す
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *ingestion.Document) (*ingestion.Document, error) {
	query := `
		INSERT INTO documents (file_name, file_type, file_size, extracted_text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	created := *doc
	err := r.pool.QueryRow(ctx, query, doc.FileName, doc.FileType, doc.FileSize, doc.ExtractedText).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return &created, nil
}

// GetDocument はIDでドキュメントを取得する
func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error) {
	query := `
		SELECT d.id, d.file_name, d.file_type, d.file_size, d.extracted_text, d.created_at,
		       (SELECT COUNT(*) FROM document_chunks dc WHERE dc.document_id = d.id) AS chunk_count
		FROM documents d
		WHERE d.id = $1`

	var doc ingestion.Document
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&doc.ID, &doc.FileName, &doc.FileType, &doc.FileSize, &doc.ExtractedText, &doc.CreatedAt, &doc.ChunkCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[*ingestion.Document](), nil
	}
	if err != nil {
		return mo.None[*ingestion.Document](), fmt.Errorf("failed to get document: %w", err)
	}

	return mo.Some(&doc), nil
}

// ListDocuments はドキュメント一覧をチャンク数つきで新しい順に返す
// 一覧では抽出済みテキストは取得しない
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*ingestion.Document, error) {
	query := `
		SELECT d.id, d.file_name, d.file_type, d.file_size, d.created_at,
		       COUNT(dc.id) AS chunk_count
		FROM documents d
		LEFT JOIN document_chunks dc ON dc.document_id = d.id
		GROUP BY d.id
		ORDER BY d.created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*ingestion.Document
	for rows.Next() {
		var doc ingestion.Document
		if err := rows.Scan(&doc.ID, &doc.FileName, &doc.FileType, &doc.FileSize, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}

	return docs, nil
}

// DeleteDocument はドキュメントとそのチャンクを削除する
// チャンクは外部キーのカスケードで削除される
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingestion.ErrDocumentNotFound
	}
	return nil
}

// ReplaceChunks は既存チャンクを全削除して新しいチャンクを同一トランザクションで保存する
func (r *DocumentRepository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*ingestion.Chunk) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO document_chunks (document_id, chunk_index, content, embedding) VALUES ($1, $2, $3, $4)`,
			documentID, chunk.ChunkIndex, chunk.Content, pgvector.NewVector(chunk.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListChunksNeedingRepair はEmbeddingが欠落または次元不一致のチャンクを返す
func (r *DocumentRepository) ListChunksNeedingRepair(ctx context.Context, dimension int) ([]*ingestion.Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, content
		FROM document_chunks
		WHERE embedding IS NULL OR vector_dims(embedding) <> $1
		ORDER BY document_id, chunk_index`

	rows, err := r.pool.Query(ctx, query, dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks needing repair: %w", err)
	}
	defer rows.Close()

	var chunks []*ingestion.Chunk
	for rows.Next() {
		var chunk ingestion.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk rows: %w", err)
	}

	return chunks, nil
}

// UpdateChunkEmbedding はチャンクのEmbeddingのみを差し替える
func (r *DocumentRepository) UpdateChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE document_chunks SET embedding = $2 WHERE id = $1`,
		chunkID, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to update chunk embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk not found: %s", chunkID)
	}
	return nil
}

// インターフェース実装の確認
var _ ingestion.Repository = (*DocumentRepository)(nil)
