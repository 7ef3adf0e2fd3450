package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ErrNotFound は指定されたOverrideが存在しない場合のエラー
var ErrNotFound = errors.New("override not found")

// ErrValidation は入力不正のエラー。下流の呼び出しを行う前に検出される
var ErrValidation = errors.New("validation error")

// ErrIndexUnavailable はOverrideインデックスへの問い合わせが失敗した場合のエラー
// 呼び出し側は「マッチなし」として処理を継続してよい（§補正は付加機能）
var ErrIndexUnavailable = errors.New("override index unavailable")

const (
	// DefaultConfidenceThreshold はOverride作成時のデフォルト閾値
	// チャンク検索のデフォルト(0.3)より意図的に高い。誤マッチの方が害が大きいため
	DefaultConfidenceThreshold = 0.85

	// DefaultCallerThreshold はマッチング時の呼び出し側デフォルト下限
	DefaultCallerThreshold = 0.85

	// candidateLimit はインデックスから取得する適格候補の上限数
	// 適格性はインデックス側で判定済みのため、実質的に使うのは先頭1件
	candidateLimit = 5

	// initialChangeReason は初版履歴の変更理由
	initialChangeReason = "Initial creation"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service はOverrideのマッチングとライフサイクル管理を提供する
type Service struct {
	repo     Repository
	embedder Embedder
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, embedder Embedder, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:     repo,
		embedder: embedder,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Match は質問に最も近いアクティブなOverrideを1件探す
//
// 候補は similarity >= max(呼び出し側閾値, Override自身の閾値) を満たし、かつ
// 適用範囲ルールに合致する場合のみ適格となる。この判定はインデックス側の
// 検索条件に含まれており、類似度上位に不適格な候補が密集していても適格な
// Overrideを取りこぼさない。サービス層でも同じルールを再適用する。
// 適格なマッチが見つかった場合、副作用として利用記録の追記と利用回数の
// 更新を1回だけ行う。
// 適格なOverrideが無いのは正常系であり、None を返す（エラーではない）
func (s *Service) Match(ctx context.Context, params MatchParams) (mo.Option[*Match], error) {
	if len(params.QueryVector) == 0 {
		return mo.None[*Match](), fmt.Errorf("%w: query vector is required", ErrValidation)
	}

	callerThreshold := params.CallerThreshold
	if callerThreshold <= 0 {
		callerThreshold = DefaultCallerThreshold
	}

	candidates, err := s.repo.SearchCandidates(ctx, CandidateQuery{
		QueryVector: params.QueryVector,
		Floor:       callerThreshold,
		DocumentIDs: params.DocumentIDs,
		Limit:       candidateLimit,
	})
	if err != nil {
		return mo.None[*Match](), fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	for _, c := range candidates {
		floor := callerThreshold
		if c.Override.ConfidenceThreshold > floor {
			floor = c.Override.ConfidenceThreshold
		}
		if c.Similarity < floor {
			continue
		}
		if !appliesTo(c.Override, params.DocumentIDs) {
			continue
		}

		// 利用記録はマッチ成立ごとに1回だけ。失敗しても回答は返す
		if err := s.repo.RecordUsage(ctx, c.Override.ID, params.QuestionText, c.Similarity, params.UserID); err != nil {
			s.logger.Error("failed to record override usage",
				"overrideID", c.Override.ID.String(),
				"error", err,
			)
		}

		s.logger.Info("override matched",
			"overrideID", c.Override.ID.String(),
			"similarity", c.Similarity,
		)

		return mo.Some(&Match{
			Override:   c.Override,
			Similarity: c.Similarity,
		}), nil
	}

	return mo.None[*Match](), nil
}

// appliesTo はOverrideが指定ドキュメント集合に適用可能かを判定する
//
// 適用条件（いずれか）:
//   - 全ドキュメントに適用するOverrideである
//   - Overrideの対象集合と呼び出し側の集合に共通要素がある
//   - Overrideの対象集合が空で、かつ呼び出し側もフィルタを渡していない
func appliesTo(o *Override, documentIDs []uuid.UUID) bool {
	if o.AppliesToAllDocuments {
		return true
	}
	if len(documentIDs) > 0 {
		for _, want := range documentIDs {
			for _, have := range o.DocumentIDs {
				if want == have {
					return true
				}
			}
		}
		return false
	}
	// フィルタなしの呼び出しには、対象集合が空のOverrideのみが適用される
	return len(o.DocumentIDs) == 0
}

// Create は新しいOverrideを作成する
// 質問のEmbeddingは作成時点で計算して保存し、初版の履歴レコードを
// Override本体と同一トランザクションで書き込む
func (s *Service) Create(ctx context.Context, params CreateParams) (*Override, error) {
	if params.OriginalQuestion == "" {
		return nil, fmt.Errorf("%w: original question is required", ErrValidation)
	}
	if params.OriginalAnswer == "" {
		return nil, fmt.Errorf("%w: original answer is required", ErrValidation)
	}
	if params.CorrectedAnswer == "" {
		return nil, fmt.Errorf("%w: corrected answer is required", ErrValidation)
	}
	if params.ExpertID == "" {
		return nil, fmt.Errorf("%w: expert ID is required", ErrValidation)
	}

	threshold := params.ConfidenceThreshold.OrElse(DefaultConfidenceThreshold)
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold must be between 0 and 1", ErrValidation)
	}

	embedding, err := s.embedder.Embed(ctx, params.OriginalQuestion)
	if err != nil {
		return nil, fmt.Errorf("failed to embed original question: %w", err)
	}

	documentIDs := params.DocumentIDs
	if documentIDs == nil {
		documentIDs = []uuid.UUID{}
	}

	o := &Override{
		OriginalQuestion:      params.OriginalQuestion,
		OriginalAnswer:        params.OriginalAnswer,
		CorrectedAnswer:       params.CorrectedAnswer,
		ExpertExplanation:     params.ExpertExplanation.ToPointer(),
		ExpertID:              params.ExpertID,
		QuestionEmbedding:     embedding,
		ConfidenceThreshold:   threshold,
		IsActive:              true,
		AppliesToAllDocuments: params.AppliesToAllDocuments,
		DocumentIDs:           documentIDs,
	}

	initialVersion := &Version{
		VersionNumber:     1,
		CorrectedAnswer:   params.CorrectedAnswer,
		ExpertExplanation: params.ExpertExplanation.ToPointer(),
		ChangedBy:         params.ExpertID,
		ChangeReason:      initialChangeReason,
	}

	created, err := s.repo.Create(ctx, o, initialVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create override: %w", err)
	}

	s.logger.Info("override created",
		"overrideID", created.ID.String(),
		"expertID", created.ExpertID,
		"threshold", created.ConfidenceThreshold,
	)

	return created, nil
}

// Update はOverrideを部分更新する
// 補正回答が実際に変わった場合のみ、新しいバージョンを履歴に追記する。
// アクティブフラグの切り替えだけではバージョンは増えない
func (s *Service) Update(ctx context.Context, params UpdateParams) (*Override, error) {
	if params.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: override ID is required", ErrValidation)
	}
	if threshold, ok := params.ConfidenceThreshold.Get(); ok {
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("%w: confidence threshold must be between 0 and 1", ErrValidation)
		}
	}

	currentOpt, err := s.repo.Get(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	current, ok := currentOpt.Get()
	if !ok {
		return nil, ErrNotFound
	}

	updated, err := s.repo.Update(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update override: %w", err)
	}

	// 回答本文の変更のみがバージョンを生む
	if answer, ok := params.CorrectedAnswer.Get(); ok && answer != current.CorrectedAnswer {
		if err := s.appendVersion(ctx, current, params, answer); err != nil {
			return nil, err
		}
	}

	return updated, nil
}

func (s *Service) appendVersion(ctx context.Context, current *Override, params UpdateParams, answer string) error {
	explanation := current.ExpertExplanation
	if e, ok := params.ExpertExplanation.Get(); ok {
		explanation = &e
	}

	changedBy := params.ChangedBy
	if changedBy == "" {
		changedBy = "Unknown"
	}
	changeReason := params.ChangeReason
	if changeReason == "" {
		changeReason = "Updated"
	}

	// バージョン番号はストア側で採番される（最大+1）
	stored, err := s.repo.AppendVersion(ctx, &Version{
		OverrideID:        current.ID,
		CorrectedAnswer:   answer,
		ExpertExplanation: explanation,
		ChangedBy:         changedBy,
		ChangeReason:      changeReason,
	})
	if err != nil {
		return fmt.Errorf("failed to append version record: %w", err)
	}

	s.logger.Info("override version appended",
		"overrideID", current.ID.String(),
		"version", stored.VersionNumber,
	)

	return nil
}

// Get はIDでOverrideを取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Override, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: override ID is required", ErrValidation)
	}

	opt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get override: %w", err)
	}
	o, ok := opt.Get()
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// List はアクティブ状態で絞り込んだOverride一覧を新しい順に返す
func (s *Service) List(ctx context.Context, isActive bool) ([]*Override, error) {
	overrides, err := s.repo.List(ctx, isActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return overrides, nil
}

// ListVersions はOverrideの変更履歴を返す
func (s *Service) ListVersions(ctx context.Context, overrideID uuid.UUID) ([]*Version, error) {
	if overrideID == uuid.Nil {
		return nil, fmt.Errorf("%w: override ID is required", ErrValidation)
	}

	versions, err := s.repo.ListVersions(ctx, overrideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// ListUsage はOverrideの利用記録を新しい順に返す
func (s *Service) ListUsage(ctx context.Context, overrideID uuid.UUID, limit int) ([]*UsageRecord, error) {
	if overrideID == uuid.Nil {
		return nil, fmt.Errorf("%w: override ID is required", ErrValidation)
	}
	if limit <= 0 {
		limit = 50
	}

	records, err := s.repo.ListUsage(ctx, overrideID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}
