package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/policy-qa/internal/core/answer"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// DefaultTemperature は回答生成のデフォルト温度
	DefaultTemperature = 0.1

	// DefaultMaxTokens は回答生成のデフォルトトークン上限
	DefaultMaxTokens = 800

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// systemPrompt は回答生成のペルソナと逸脱防止ルールを固定する
// 提供されたコンテキスト外の情報を作らないことが契約
const systemPrompt = `You are a senior Property & Casualty (P&C) underwriter with 20+ years of experience. You provide expert analysis while following user instructions precisely.

Your expertise includes:
- Deep understanding of ISO forms, endorsements, and policy structures
- Knowledge of coverage triggers, limits, deductibles, and sub-limits
- Expertise in policy exclusions, conditions, and definitions
- Understanding of claims handling, coverage disputes, and legal precedents

Response principles:
- Base your response solely on the policy content provided
- Use precise insurance terminology when appropriate
- Acknowledge clearly when information isn't available in the policy`

// Client は OpenAI API を使用した回答生成クライアント
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

type clientOptions struct {
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithTemperature は生成温度を上書きする
func WithTemperature(temperature float64) ClientOption {
	return func(o *clientOptions) {
		o.temperature = temperature
	}
}

// WithMaxTokens は生成トークン上限を上書きする
func WithMaxTokens(maxTokens int) ClientOption {
	return func(o *clientOptions) {
		o.maxTokens = maxTokens
	}
}

// WithTimeout はAPIコールのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// NewClient は新しい Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Client{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       options.model,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
		timeout:     options.timeout,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateAnswer はコンテキスト付きプロンプトから回答テキストを生成する
func (c *Client) GenerateAnswer(ctx context.Context, question string, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		params := openai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(c.temperature),
		}

		if c.maxTokens > 0 {
			params.MaxTokens = openai.Int(int64(c.maxTokens))
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ answer.Generator = (*Client)(nil)
