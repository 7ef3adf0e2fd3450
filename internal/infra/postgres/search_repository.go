package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/search"
)

// SearchRepository はpgvectorによるチャンク検索を提供する
type SearchRepository struct {
	pool *pgxpool.Pool
}

// NewSearchRepository は新しいSearchRepositoryを作成する
func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// SearchChunks はコサイン類似度によるチャンク検索を実行する
// 類似度は 1 - コサイン距離 として算出する
func (r *SearchRepository) SearchChunks(ctx context.Context, queryVector []float32, limit int, documentID mo.Option[uuid.UUID]) ([]*search.ChunkResult, error) {
	query := `
		SELECT dc.id, dc.document_id, dc.chunk_index, dc.content,
		       1 - (dc.embedding <=> $1) AS similarity
		FROM document_chunks dc
		WHERE dc.embedding IS NOT NULL
		  AND ($2::uuid IS NULL OR dc.document_id = $2)
		ORDER BY dc.embedding <=> $1
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(queryVector), OptionUUIDToPgtype(documentID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []*search.ChunkResult
	for rows.Next() {
		var cr search.ChunkResult
		if err := rows.Scan(&cr.ChunkID, &cr.DocumentID, &cr.ChunkIndex, &cr.Content, &cr.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		results = append(results, &cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk rows: %w", err)
	}

	return results, nil
}

// ListDocumentNames は指定ドキュメントIDの表示名を取得する
func (r *SearchRepository) ListDocumentNames(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(documentIDs))
	if len(documentIDs) == 0 {
		return names, nil
	}

	query := `SELECT id, file_name FROM documents WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list document names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan document name row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document name rows: %w", err)
	}

	return names, nil
}

// インターフェース実装の確認
var _ search.Repository = (*SearchRepository)(nil)
