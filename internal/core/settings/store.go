package settings

import (
	"fmt"
	"sync"

	"github.com/samber/mo"
)

// SearchSettings はプロセス全体で共有される検索設定を表す
type SearchSettings struct {
	SimilarityThreshold float64 `json:"similarityThreshold"` // [0,1]
	MaxResults          int     `json:"maxResults"`          // [1,50]
	ContextChunks       int     `json:"contextChunks"`       // [1,10]
}

// DefaultSettings は起動時の検索設定を返す
func DefaultSettings() SearchSettings {
	return SearchSettings{
		SimilarityThreshold: 0.3,
		MaxResults:          15,
		ContextChunks:       5,
	}
}

// UpdateParams は検索設定の部分更新パラメータを表す
// 指定されたフィールドのみが更新対象になる
type UpdateParams struct {
	SimilarityThreshold mo.Option[float64]
	MaxResults          mo.Option[int]
	ContextChunks       mo.Option[int]
}

// Store は検索設定のインメモリストア
// 読み取りは常に一貫したスナップショットを返し、更新は全フィールドまとめて適用される
type Store struct {
	mu       sync.RWMutex
	settings SearchSettings
}

// NewStore はデフォルト値で初期化されたStoreを作成する
func NewStore() *Store {
	return &Store{
		settings: DefaultSettings(),
	}
}

// Get は現在の検索設定のスナップショットを返す
func (s *Store) Get() SearchSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update は指定されたフィールドを検証のうえ一括で適用する
// いずれかのフィールドが範囲外の場合、更新全体を拒否して現状を維持する
func (s *Store) Update(params UpdateParams) (SearchSettings, error) {
	if threshold, ok := params.SimilarityThreshold.Get(); ok {
		if threshold < 0 || threshold > 1 {
			return SearchSettings{}, fmt.Errorf("similarity threshold must be between 0 and 1")
		}
	}
	if maxResults, ok := params.MaxResults.Get(); ok {
		if maxResults < 1 || maxResults > 50 {
			return SearchSettings{}, fmt.Errorf("max results must be between 1 and 50")
		}
	}
	if contextChunks, ok := params.ContextChunks.Get(); ok {
		if contextChunks < 1 || contextChunks > 10 {
			return SearchSettings{}, fmt.Errorf("context chunks must be between 1 and 10")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if threshold, ok := params.SimilarityThreshold.Get(); ok {
		s.settings.SimilarityThreshold = threshold
	}
	if maxResults, ok := params.MaxResults.Get(); ok {
		s.settings.MaxResults = maxResults
	}
	if contextChunks, ok := params.ContextChunks.Get(); ok {
		s.settings.ContextChunks = contextChunks
	}

	return s.settings, nil
}
