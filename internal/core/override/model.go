package override

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Override は専門家による回答の上書き（エキスパート補正）を表す
// 類似度が十分高い将来の質問に対して、AI生成よりも優先して返される
type Override struct {
	ID                    uuid.UUID  `json:"id"`
	OriginalQuestion      string     `json:"originalQuestion"`
	OriginalAnswer        string     `json:"originalAnswer"`
	CorrectedAnswer       string     `json:"correctedAnswer"`
	ExpertExplanation     *string    `json:"expertExplanation,omitempty"`
	ExpertID              string     `json:"expertID"`
	QuestionEmbedding     []float32  `json:"-"`
	ConfidenceThreshold   float64    `json:"confidenceThreshold"`
	IsActive              bool       `json:"isActive"`
	AppliesToAllDocuments bool       `json:"appliesToAllDocuments"`
	DocumentIDs           []uuid.UUID `json:"documentIDs"`
	TimesUsed             int        `json:"timesUsed"`
	LastUsedAt            *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Match はマッチしたOverrideと測定された類似度の組を表す
type Match struct {
	Override   *Override `json:"override"`
	Similarity float64   `json:"similarity"`
}

// Version はOverrideの変更履歴1件を表す（追記専用）
type Version struct {
	ID                uuid.UUID `json:"id"`
	OverrideID        uuid.UUID `json:"overrideID"`
	VersionNumber     int       `json:"versionNumber"`
	CorrectedAnswer   string    `json:"correctedAnswer"`
	ExpertExplanation *string   `json:"expertExplanation,omitempty"`
	ChangedBy         string    `json:"changedBy"`
	ChangeReason      string    `json:"changeReason"`
	CreatedAt         time.Time `json:"createdAt"`
}

// UsageRecord はOverrideが回答に採用された1回分の記録を表す（追記専用）
type UsageRecord struct {
	ID              uuid.UUID `json:"id"`
	OverrideID      uuid.UUID `json:"overrideID"`
	QuestionAsked   string    `json:"questionAsked"`
	SimilarityScore float64   `json:"similarityScore"`
	UserID          *string   `json:"userID,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MatchParams はOverrideマッチングのパラメータを表す
type MatchParams struct {
	QueryVector     []float32         // 質問文のEmbedding
	QuestionText    string            // 利用記録に残す質問文
	CallerThreshold float64           // 呼び出し側の類似度下限（デフォルト: 0.85）
	DocumentIDs     []uuid.UUID       // 質問が対象とするドキュメント集合（空 = フィルタなし）
	UserID          mo.Option[string] // 利用記録に残す質問者ID
}

// CreateParams はOverride作成のパラメータを表す
type CreateParams struct {
	OriginalQuestion      string
	OriginalAnswer        string
	CorrectedAnswer       string
	ExpertExplanation     mo.Option[string]
	ExpertID              string
	ConfidenceThreshold   mo.Option[float64] // 省略時は0.85
	AppliesToAllDocuments bool
	DocumentIDs           []uuid.UUID
}

// UpdateParams はOverrideの部分更新パラメータを表す
// 指定されたフィールドのみが更新される
type UpdateParams struct {
	ID                    uuid.UUID
	CorrectedAnswer       mo.Option[string]
	ExpertExplanation     mo.Option[string]
	ConfidenceThreshold   mo.Option[float64]
	IsActive              mo.Option[bool]
	AppliesToAllDocuments mo.Option[bool]
	DocumentIDs           mo.Option[[]uuid.UUID]
	ChangedBy             string
	ChangeReason          string
}
