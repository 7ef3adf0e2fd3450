package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/policy-qa/internal/core/search"
)

// TokenCounter はtiktokenによるトークンカウントを提供する
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は新しいTokenCounterを作成する
// cl100k_baseエンコーディングを使用する
func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &TokenCounter{
		encoding: encoding,
	}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoding == nil {
		// エンコーディングが初期化されていない場合は0を返す
		return 0
	}
	tokens := tc.encoding.Encode(text, nil, nil)
	return len(tokens)
}

// インターフェース実装の確認
var _ search.TokenCounter = (*TokenCounter)(nil)
