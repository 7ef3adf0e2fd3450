package override

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Candidate はインデックスから取得したマッチ候補を表す
type Candidate struct {
	Override   *Override
	Similarity float64
}

// CandidateQuery はマッチ候補検索の条件を表す
type CandidateQuery struct {
	QueryVector []float32
	Floor       float64     // 呼び出し側の類似度下限。Override自身の閾値とのGREATESTが実際の下限になる
	DocumentIDs []uuid.UUID // 質問が対象とするドキュメント集合（空 = フィルタなし）
	Limit       int
}

// Repository はOverride関連の全データアクセスを統合するインターフェース
type Repository interface {
	// SearchCandidates は適格なアクティブOverrideを類似度降順で最大Limit件取得する
	// 閾値フロアと適用範囲はインデックス側で判定する。Limitで足切りされるのは
	// 適格な候補だけであり、不適格な候補が適格な候補を隠すことはない
	SearchCandidates(ctx context.Context, query CandidateQuery) ([]*Candidate, error)

	// RecordUsage は利用記録を追記し、利用回数と最終利用時刻を原子的に更新する
	RecordUsage(ctx context.Context, overrideID uuid.UUID, questionAsked string, similarity float64, userID mo.Option[string]) error

	// Create はOverrideと初版の履歴レコードを同一トランザクションで保存する
	Create(ctx context.Context, o *Override, initialVersion *Version) (*Override, error)

	// Get はIDでOverrideを取得する
	Get(ctx context.Context, id uuid.UUID) (mo.Option[*Override], error)

	// List はアクティブ状態で絞り込み、作成日時の降順で返す
	List(ctx context.Context, isActive bool) ([]*Override, error)

	// Update は指定フィールドのみを更新し、更新後のOverrideを返す
	Update(ctx context.Context, params UpdateParams) (*Override, error)

	// AppendVersion は変更履歴を追記する。バージョン番号は既存の最大+1が
	// ストア側で採番され、採番済みのレコードが返る
	AppendVersion(ctx context.Context, v *Version) (*Version, error)

	// ListVersions はOverrideの変更履歴をバージョン番号の降順で返す
	ListVersions(ctx context.Context, overrideID uuid.UUID) ([]*Version, error)

	// ListUsage はOverrideの利用記録を新しい順に最大limit件返す
	ListUsage(ctx context.Context, overrideID uuid.UUID, limit int) ([]*UsageRecord, error)
}
