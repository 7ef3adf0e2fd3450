package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はドキュメントとチャンクのデータアクセスを統合するインターフェース
type Repository interface {
	// CreateDocument はドキュメントを保存して生成されたIDを含めて返す
	CreateDocument(ctx context.Context, doc *Document) (*Document, error)

	// GetDocument はIDでドキュメントを取得する
	GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error)

	// ListDocuments はドキュメント一覧をチャンク数つきで新しい順に返す
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDocument はドキュメントとそのチャンクを削除する
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// ReplaceChunks は既存チャンクを全削除して新しいチャンクを同一トランザクションで保存する
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*Chunk) error

	// ListChunksNeedingRepair はEmbeddingが欠落または次元不一致のチャンクを返す
	ListChunksNeedingRepair(ctx context.Context, dimension int) ([]*Chunk, error)

	// UpdateChunkEmbedding はチャンクのEmbeddingのみを差し替える
	UpdateChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error
}
