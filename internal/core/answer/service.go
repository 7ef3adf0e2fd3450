package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/override"
	"github.com/jinford/policy-qa/internal/core/search"
	"github.com/jinford/policy-qa/internal/core/settings"
)

// ErrValidation は入力不正のエラー。下流の呼び出しを行う前に検出される
var ErrValidation = errors.New("validation error")

// sourcePreviewLength はソース表示に含める本文プレビューの最大文字数
const sourcePreviewLength = 200

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator は回答生成インターフェース
type Generator interface {
	// GenerateAnswer はコンテキスト付きプロンプトから回答テキストを生成する
	GenerateAnswer(ctx context.Context, question string, prompt string) (string, error)
}

// OverrideMatcher はエキスパート補正のマッチングインターフェース
type OverrideMatcher interface {
	Match(ctx context.Context, params override.MatchParams) (mo.Option[*override.Match], error)
}

// ChunkSearcher はチャンク検索インターフェース
type ChunkSearcher interface {
	Search(ctx context.Context, params search.SearchParams) ([]*search.ChunkResult, error)
	DocumentNames(ctx context.Context, results []*search.ChunkResult) (map[uuid.UUID]string, error)
}

// SettingsProvider は検索設定のスナップショットを提供するインターフェース
type SettingsProvider interface {
	Get() settings.SearchSettings
}

// Composer は質問に対する回答を合成する
//
// 処理順: Override照合 → チャンク検索 → コンテキスト組み立て → 回答生成。
// Override照合の失敗は「マッチなし」に縮退して処理を続行する（補正は付加機能）。
// チャンク検索・Embedding・生成の失敗はリクエスト全体の失敗となる
type Composer struct {
	embedder  Embedder
	matcher   OverrideMatcher
	searcher  ChunkSearcher
	assembler *search.ContextAssembler
	generator Generator
	settings  SettingsProvider
	logger    *slog.Logger
}

// ComposerOption は Composer のオプション設定
type ComposerOption func(*Composer)

// WithComposerLogger は Composer にロガーを設定する
func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger
	}
}

// NewComposer は新しいComposerを作成する
func NewComposer(
	embedder Embedder,
	matcher OverrideMatcher,
	searcher ChunkSearcher,
	assembler *search.ContextAssembler,
	generator Generator,
	settingsProvider SettingsProvider,
	opts ...ComposerOption,
) *Composer {
	c := &Composer{
		embedder:  embedder,
		matcher:   matcher,
		searcher:  searcher,
		assembler: assembler,
		generator: generator,
		settings:  settingsProvider,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Ask は質問に対する回答を合成して返す
func (c *Composer) Ask(ctx context.Context, params AskParams) (*Answer, error) {
	if params.Question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}

	cfg := c.settings.Get()

	questionVector, err := c.embedder.Embed(ctx, params.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	match := c.matchOverride(ctx, params, questionVector)

	chunks, err := c.searcher.Search(ctx, search.SearchParams{
		QueryVector: questionVector,
		MaxResults:  cfg.MaxResults,
		DocumentID:  params.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	names := c.documentNames(ctx, chunks)

	assembled := c.assembler.Assemble(search.AssembleParams{
		Results:             chunks,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxChunks:           cfg.ContextChunks,
		DocumentNames:       names,
	})

	documentsSearched := countDocuments(chunks)

	if m, ok := match.Get(); ok {
		return c.composeExpert(ctx, params, m, assembled, documentsSearched)
	}
	return c.composeAI(ctx, params, chunks, assembled, documentsSearched)
}

// matchOverride はOverride照合を実行する。失敗時はログに残してマッチなしとして扱う
func (c *Composer) matchOverride(ctx context.Context, params AskParams, questionVector []float32) mo.Option[*override.Match] {
	var documentIDs []uuid.UUID
	if id, ok := params.DocumentID.Get(); ok {
		documentIDs = []uuid.UUID{id}
	}

	match, err := c.matcher.Match(ctx, override.MatchParams{
		QueryVector:     questionVector,
		QuestionText:    params.Question,
		CallerThreshold: override.DefaultCallerThreshold,
		DocumentIDs:     documentIDs,
		UserID:          params.UserID,
	})
	if err != nil {
		c.logger.Warn("override matching failed, continuing without override", "error", err)
		return mo.None[*override.Match]()
	}
	return match
}

// documentNames はソース表示用のドキュメント名を引く。失敗してもリクエストは落とさない
func (c *Composer) documentNames(ctx context.Context, chunks []*search.ChunkResult) map[uuid.UUID]string {
	if len(chunks) == 0 {
		return nil
	}
	names, err := c.searcher.DocumentNames(ctx, chunks)
	if err != nil {
		c.logger.Warn("failed to resolve document names", "error", err)
		return nil
	}
	return names
}

// composeExpert はエキスパート回答を主、AI回答を従とするレスポンスを構築する
func (c *Composer) composeExpert(
	ctx context.Context,
	params AskParams,
	m *override.Match,
	assembled mo.Option[*search.AssembledContext],
	documentsSearched int,
) (*Answer, error) {
	result := &Answer{
		Kind:              KindExpert,
		ExpertAnswer:      m.Override.CorrectedAnswer,
		ExpertExplanation: m.Override.ExpertExplanation,
		Confidence:        ConfidenceExpert,
		Sources:           []Source{overrideSource(m)},
		DocumentsSearched: documentsSearched,
	}

	ac, ok := assembled.Get()
	if !ok {
		// コンテキストが無ければ生成はスキップする。レスポンスは成立させる
		return result, nil
	}

	prompt := BuildAnswerPrompt(params.Question, ac.PromptText)
	aiAnswer, err := c.generator.GenerateAnswer(ctx, params.Question, prompt)
	if err != nil {
		// エキスパート回答が確定している以上、補足生成の失敗で全体は落とさない
		c.logger.Warn("supplementary generation failed, returning expert answer only", "error", err)
		return result, nil
	}

	result.Kind = KindExpertWithContext
	result.Answer = aiAnswer
	result.Sources = append(result.Sources, chunkSources(ac)...)
	result.SearchResults = len(ac.Chunks)
	return result, nil
}

// composeAI はAI生成のみのレスポンスを構築する
func (c *Composer) composeAI(
	ctx context.Context,
	params AskParams,
	chunks []*search.ChunkResult,
	assembled mo.Option[*search.AssembledContext],
	documentsSearched int,
) (*Answer, error) {
	// ヒットが1件も無い場合と、閾値超えが無い場合は別の定型文で返す。
	// どちらも生成呼び出しは行わない
	if len(chunks) == 0 {
		return &Answer{
			Kind:       KindNone,
			Answer:     noContentAnswer(params.Question),
			Confidence: ConfidenceNone,
			Sources:    []Source{},
		}, nil
	}

	ac, ok := assembled.Get()
	if !ok {
		return &Answer{
			Kind:              KindNone,
			Answer:            lowRelevanceAnswer(params.Question),
			Confidence:        ConfidenceLow,
			Sources:           []Source{},
			DocumentsSearched: documentsSearched,
		}, nil
	}

	prompt := BuildAnswerPrompt(params.Question, ac.PromptText)
	aiAnswer, err := c.generator.GenerateAnswer(ctx, params.Question, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	c.logger.Info("answer composed",
		"kind", KindAI,
		"chunks", len(ac.Chunks),
		"documents", documentsSearched,
	)

	return &Answer{
		Kind:              KindAI,
		Answer:            aiAnswer,
		Confidence:        gradeConfidence(ac.Chunks[0].Similarity),
		Sources:           chunkSources(ac),
		SearchResults:     len(ac.Chunks),
		DocumentsSearched: documentsSearched,
	}, nil
}

// gradeConfidence は最上位チャンクの類似度から確信度を格付けする
func gradeConfidence(topSimilarity float64) Confidence {
	switch {
	case topSimilarity > 0.8:
		return ConfidenceHigh
	case topSimilarity > 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// relevanceBand は類似度から定性的な関連度ラベルを返す
func relevanceBand(similarity float64) string {
	switch {
	case similarity > 0.8:
		return "High"
	case similarity > 0.6:
		return "Medium"
	default:
		return "Low"
	}
}

// overrideSource はOverride由来のソース表示を構築する。常にソース一覧の先頭に置く
func overrideSource(m *override.Match) Source {
	return Source{
		Document:   "Expert Override",
		Section:    "Verified Answer",
		Content:    preview(m.Override.OriginalQuestion),
		Similarity: percent(m.Similarity),
		Relevance:  "Expert",
	}
}

// chunkSources は採用チャンクのソース表示を構築する
func chunkSources(ac *search.AssembledContext) []Source {
	sources := make([]Source, 0, len(ac.Chunks))
	for _, chunk := range ac.Chunks {
		sources = append(sources, Source{
			Document:   chunk.DocumentName,
			Section:    search.SectionLabel(chunk.ChunkIndex),
			Content:    preview(chunk.Content),
			Similarity: percent(chunk.Similarity),
			Relevance:  relevanceBand(chunk.Similarity),
		})
	}
	return sources
}

// preview は本文の先頭をソース表示用に切り出す
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= sourcePreviewLength {
		return content
	}
	return string(runes[:sourcePreviewLength]) + "..."
}

// percent は類似度を百分率の整数に丸める
func percent(similarity float64) int {
	return int(math.Round(similarity * 100))
}

// countDocuments は検索候補に含まれるドキュメント数を数える
func countDocuments(chunks []*search.ChunkResult) int {
	seen := make(map[uuid.UUID]bool, len(chunks))
	for _, chunk := range chunks {
		seen[chunk.DocumentID] = true
	}
	return len(seen)
}
