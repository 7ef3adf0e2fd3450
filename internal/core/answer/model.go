package answer

import (
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Kind は回答レスポンスの種別（タグ付きユニオンの判別子）
type Kind string

const (
	// KindExpert はエキスパート回答のみのレスポンス
	KindExpert Kind = "expert"
	// KindExpertWithContext はエキスパート回答＋補足のAI回答を持つレスポンス
	KindExpertWithContext Kind = "expert_with_context"
	// KindAI はAI生成回答のみのレスポンス
	KindAI Kind = "ai"
	// KindNone は回答可能な情報が見つからなかったレスポンス
	KindNone Kind = "none"
)

// Confidence は回答に付与される定性的な確信度
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
	ConfidenceExpert Confidence = "expert"
)

// Source は回答の根拠1件を表す
type Source struct {
	Document   string `json:"document"`   // ドキュメント表示名
	Section    string `json:"section"`    // 人間可読なセクション表記
	Content    string `json:"content"`    // 本文プレビュー
	Similarity int    `json:"similarity"` // 類似度（百分率）
	Relevance  string `json:"relevance"`  // High / Medium / Low / Expert
}

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Question   string               // 質問文
	DocumentID mo.Option[uuid.UUID] // 指定時は単一ドキュメントに限定
	UserID     mo.Option[string]    // Override利用記録に残す質問者ID
}

// Answer は合成済みの回答レスポンスを表す
// Kind に応じて有効なフィールドが異なる
type Answer struct {
	Kind              Kind       `json:"kind"`
	Answer            string     `json:"answer"`                      // AI回答または定型文。expert系では補足コンテキスト
	ExpertAnswer      string     `json:"expertAnswer,omitempty"`      // expert系のみ
	ExpertExplanation *string    `json:"expertExplanation,omitempty"` // expert系のみ
	Confidence        Confidence `json:"confidence"`
	Sources           []Source   `json:"sources"`
	SearchResults     int        `json:"searchResults"`     // コンテキストに採用したチャンク数
	DocumentsSearched int        `json:"documentsSearched"` // 候補に含まれたドキュメント数
}
