package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Document はアップロード済みドキュメントを表す
// チャンク生成後は不変であり、再処理時はチャンクごと丸ごと作り直す
type Document struct {
	ID            uuid.UUID `json:"id"`
	FileName      string    `json:"fileName"`
	FileType      string    `json:"fileType"`
	FileSize      int64     `json:"fileSize"`
	ExtractedText string    `json:"-"`
	ChunkCount    int       `json:"chunkCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Chunk はドキュメントから切り出された検索単位を表す
// Embeddingの次元はモデルの固定次元と一致していなければ検索対象にならない
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"documentID"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// RegisterParams はドキュメント登録のパラメータを表す
// テキスト抽出は外部のパイプラインが済ませている前提
type RegisterParams struct {
	FileName      string
	FileType      string
	FileSize      int64
	ExtractedText string
}

// RegisterResult はドキュメント登録の結果を表す
type RegisterResult struct {
	Document    *Document
	TotalChunks int
}

// RepairResult はEmbedding修復処理の結果を表す
type RepairResult struct {
	TotalChunks int `json:"totalChunks"`
	FixedCount  int `json:"fixedCount"`
	ErrorCount  int `json:"errorCount"`
}
