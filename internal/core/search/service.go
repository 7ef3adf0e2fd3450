package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrIndexUnavailable はチャンクインデックスへの問い合わせが失敗した場合のエラー
// 「該当なし」と「検索基盤の障害」を呼び出し側で区別するために用いる
var ErrIndexUnavailable = errors.New("chunk index unavailable")

// DefaultMaxResults はMaxResults未指定時に要求する近傍数
const DefaultMaxResults = 15

// ChunkSearchService はチャンク検索のビジネスロジックを提供する
type ChunkSearchService struct {
	repo   Repository
	logger *slog.Logger
}

// ChunkSearchServiceOption は ChunkSearchService のオプション設定
type ChunkSearchServiceOption func(*ChunkSearchService)

// WithSearchLogger は ChunkSearchService にロガーを設定する
func WithSearchLogger(logger *slog.Logger) ChunkSearchServiceOption {
	return func(s *ChunkSearchService) {
		s.logger = logger
	}
}

// NewChunkSearchService は新しいChunkSearchServiceを作成する
func NewChunkSearchService(repo Repository, opts ...ChunkSearchServiceOption) *ChunkSearchService {
	svc := &ChunkSearchService{
		repo:   repo,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Search は質問ベクトルに基づいてチャンク検索を実行する
// 結果は類似度の降順で返る（同値の順序はインデックス側の決定に従う）
func (s *ChunkSearchService) Search(ctx context.Context, params SearchParams) ([]*ChunkResult, error) {
	if len(params.QueryVector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	limit := params.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	results, err := s.repo.SearchChunks(ctx, params.QueryVector, limit, params.DocumentID)
	if err != nil {
		// 空結果ではなくエラーとして返す。検索の失敗を握りつぶさない
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	s.logger.Info("chunk search completed",
		"results", len(results),
		"limit", limit,
		"scoped", params.DocumentID.IsPresent(),
	)

	return results, nil
}

// DocumentNames は検索結果に含まれるドキュメントの表示名を引く
func (s *ChunkSearchService) DocumentNames(ctx context.Context, results []*ChunkResult) (map[uuid.UUID]string, error) {
	names, err := s.repo.ListDocumentNames(ctx, uniqueDocumentIDs(results))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document names: %w", err)
	}
	return names, nil
}

// uniqueDocumentIDs は検索結果からドキュメントIDの重複を除いて返す
func uniqueDocumentIDs(results []*ChunkResult) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(results))
	ids := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		if !seen[r.DocumentID] {
			seen[r.DocumentID] = true
			ids = append(ids, r.DocumentID)
		}
	}
	return ids
}
