package search

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ChunkResult はチャンク検索の結果1件を表す
type ChunkResult struct {
	ChunkID    uuid.UUID `json:"chunkID"`
	DocumentID uuid.UUID `json:"documentID"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
}

// SearchParams はチャンク検索のパラメータを表す
type SearchParams struct {
	QueryVector []float32            // 質問文のEmbedding
	MaxResults  int                  // インデックスに要求する近傍数（デフォルト: 15）
	DocumentID  mo.Option[uuid.UUID] // 指定時は単一ドキュメントに限定
}

// ContextChunk はコンテキストに採用されたチャンクと解決済みのドキュメント名の組
type ContextChunk struct {
	*ChunkResult
	DocumentName string `json:"documentName"`
}

// AssembledContext は組み立て済みのプロンプトコンテキストを表す
type AssembledContext struct {
	PromptText string          // 生成呼び出しに渡すコンテキスト本文
	Chunks     []*ContextChunk // 採用されたチャンク（スコア降順のまま）
	TokenCount int             // PromptTextのトークン数
}
