package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はチャンク検索のデータアクセスを抽象化するインターフェース
type Repository interface {
	// SearchChunks はコサイン類似度によるチャンク検索を実行する
	// documentID 指定時は対象ドキュメントのチャンクのみを候補とする
	SearchChunks(ctx context.Context, queryVector []float32, limit int, documentID mo.Option[uuid.UUID]) ([]*ChunkResult, error)

	// ListDocumentNames は指定ドキュメントIDの表示名を取得する
	ListDocumentNames(ctx context.Context, documentIDs []uuid.UUID) (map[uuid.UUID]string, error)
}
