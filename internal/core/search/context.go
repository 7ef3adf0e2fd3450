package search

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// chunkSeparator はコンテキスト内のチャンク区切り
const chunkSeparator = "\n\n---\n\n"

// unknownDocumentName は表示名を解決できなかったドキュメントのフォールバック名
const unknownDocumentName = "Unknown Document"

// TokenCounter はテキストのトークン数をカウントするインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

// AssembleParams はコンテキスト組み立てのパラメータを表す
type AssembleParams struct {
	Results             []*ChunkResult          // 類似度降順の検索結果
	SimilarityThreshold float64                 // この値より大きいチャンクのみ採用（境界値は除外）
	MaxChunks           int                     // 採用するチャンク数の上限
	DocumentNames       map[uuid.UUID]string    // ドキュメントID → 表示名
}

// ContextAssembler は検索結果から生成用コンテキストを組み立てる
type ContextAssembler struct {
	counter   TokenCounter
	maxTokens int
}

// DefaultMaxContextTokens はコンテキストに許容するトークン数の上限
const DefaultMaxContextTokens = 6000

// ContextAssemblerOption は ContextAssembler のオプション設定
type ContextAssemblerOption func(*ContextAssembler)

// WithMaxContextTokens はトークン上限を上書きする
func WithMaxContextTokens(maxTokens int) ContextAssemblerOption {
	return func(a *ContextAssembler) {
		a.maxTokens = maxTokens
	}
}

// NewContextAssembler は新しいContextAssemblerを作成する
func NewContextAssembler(counter TokenCounter, opts ...ContextAssemblerOption) *ContextAssembler {
	a := &ContextAssembler{
		counter:   counter,
		maxTokens: DefaultMaxContextTokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble は閾値を超えるチャンクからプロンプト用コンテキストを組み立てる
// 採用できるチャンクが1つもない場合は None を返す。空文字列では返さない
func (a *ContextAssembler) Assemble(params AssembleParams) mo.Option[*AssembledContext] {
	// 閾値は strict 比較。閾値ちょうどのチャンクは含めない
	qualified := make([]*ChunkResult, 0, len(params.Results))
	for _, r := range params.Results {
		if r.Similarity > params.SimilarityThreshold {
			qualified = append(qualified, r)
		}
	}

	if len(qualified) == 0 {
		return mo.None[*AssembledContext]()
	}

	maxChunks := params.MaxChunks
	if maxChunks <= 0 {
		maxChunks = 1
	}
	if len(qualified) > maxChunks {
		qualified = qualified[:maxChunks]
	}

	// ランク順を保ったままトークン上限まで詰める。先頭チャンクは必ず含める
	blocks := make([]string, 0, len(qualified))
	used := make([]*ContextChunk, 0, len(qualified))
	tokens := 0
	for i, r := range qualified {
		cc := &ContextChunk{
			ChunkResult:  r,
			DocumentName: documentName(r, params.DocumentNames),
		}
		block := renderChunkBlock(cc)
		blockTokens := a.countTokens(block)
		if i > 0 && tokens+blockTokens > a.maxTokens {
			break
		}
		blocks = append(blocks, block)
		used = append(used, cc)
		tokens += blockTokens
	}

	return mo.Some(&AssembledContext{
		PromptText: strings.Join(blocks, chunkSeparator),
		Chunks:     used,
		TokenCount: tokens,
	})
}

func (a *ContextAssembler) countTokens(text string) int {
	if a.counter == nil {
		// カウンタ未設定の場合は上限を適用しない
		return 0
	}
	return a.counter.CountTokens(text)
}

// documentName はチャンクのドキュメント表示名を解決する
func documentName(r *ChunkResult, names map[uuid.UUID]string) string {
	name, ok := names[r.DocumentID]
	if !ok || name == "" {
		return unknownDocumentName
	}
	return name
}

// renderChunkBlock はチャンク1件をコンテキストブロックとして整形する
// 形式: [<ドキュメント名> - Section <番号>]:\n<本文>
func renderChunkBlock(cc *ContextChunk) string {
	return fmt.Sprintf("[%s - Section %d]:\n%s", cc.DocumentName, cc.ChunkIndex+1, cc.Content)
}

// SectionLabel はチャンクの「Section N」表記を返す（回答のソース表示用）
func SectionLabel(chunkIndex int) string {
	return fmt.Sprintf("Section %d", chunkIndex+1)
}
