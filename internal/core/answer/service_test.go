package answer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/policy-qa/internal/core/override"
	"github.com/jinford/policy-qa/internal/core/search"
	"github.com/jinford/policy-qa/internal/core/settings"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector, e.err
}

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (g *stubGenerator) GenerateAnswer(ctx context.Context, question string, prompt string) (string, error) {
	g.calls++
	return g.answer, g.err
}

type stubMatcher struct {
	match      mo.Option[*override.Match]
	err        error
	lastParams override.MatchParams
}

func (m *stubMatcher) Match(ctx context.Context, params override.MatchParams) (mo.Option[*override.Match], error) {
	m.lastParams = params
	if m.err != nil {
		return mo.None[*override.Match](), m.err
	}
	return m.match, nil
}

type stubSearcher struct {
	results []*search.ChunkResult
	err     error
	names   map[uuid.UUID]string
}

func (s *stubSearcher) Search(ctx context.Context, params search.SearchParams) ([]*search.ChunkResult, error) {
	return s.results, s.err
}

func (s *stubSearcher) DocumentNames(ctx context.Context, results []*search.ChunkResult) (map[uuid.UUID]string, error) {
	return s.names, nil
}

type stubSettings struct {
	cfg settings.SearchSettings
}

func (s *stubSettings) Get() settings.SearchSettings {
	return s.cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
}

func defaultStubSettings() *stubSettings {
	return &stubSettings{cfg: settings.DefaultSettings()}
}

func chunk(docID uuid.UUID, index int, content string, similarity float64) *search.ChunkResult {
	return &search.ChunkResult{
		ChunkID:    uuid.New(),
		DocumentID: docID,
		ChunkIndex: index,
		Content:    content,
		Similarity: similarity,
	}
}

func newTestComposer(embedder *stubEmbedder, matcher *stubMatcher, searcher *stubSearcher, generator *stubGenerator) *Composer {
	return NewComposer(
		embedder,
		matcher,
		searcher,
		search.NewContextAssembler(nil),
		generator,
		defaultStubSettings(),
		WithComposerLogger(testLogger()),
	)
}

func noMatch() *stubMatcher {
	return &stubMatcher{match: mo.None[*override.Match]()}
}

func TestComposer_AskRequiresQuestion(t *testing.T) {
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), &stubSearcher{}, &stubGenerator{})

	_, err := composer.Ask(context.Background(), AskParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComposer_AskNoChunksReturnsNoContentAnswer(t *testing.T) {
	generator := &stubGenerator{answer: "should not be used"}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), &stubSearcher{}, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "Is hail covered?"})
	require.NoError(t, err)

	assert.Equal(t, KindNone, result.Kind)
	assert.Equal(t, ConfidenceNone, result.Confidence)
	assert.Contains(t, result.Answer, "couldn't find specific information")
	assert.Contains(t, result.Answer, "Is hail covered?")
	assert.Empty(t, result.Sources)
	// 定型文のケースでは生成呼び出しは行わない
	assert.Equal(t, 0, generator.calls)
}

func TestComposer_AskBelowThresholdReturnsLowRelevanceAnswer(t *testing.T) {
	docID := uuid.New()
	generator := &stubGenerator{answer: "should not be used"}
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 0, "barely related", 0.1),
		},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), searcher, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "Is hail covered?"})
	require.NoError(t, err)

	// ヒットゼロとは別の定型文になる
	assert.Equal(t, KindNone, result.Kind)
	assert.Equal(t, ConfidenceLow, result.Confidence)
	assert.Contains(t, result.Answer, "none was closely related")
	assert.Equal(t, 0, generator.calls)
	assert.Equal(t, 1, result.DocumentsSearched)
}

func TestComposer_AskGeneratesAIAnswer(t *testing.T) {
	docID := uuid.New()
	generator := &stubGenerator{answer: "Hail damage is covered under Section I."}
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 0, "hail damage to the dwelling is covered", 0.85),
			chunk(docID, 1, "wind damage is covered", 0.7),
		},
		names: map[uuid.UUID]string{docID: "homeowners.pdf"},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), searcher, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "Is hail covered?"})
	require.NoError(t, err)

	assert.Equal(t, KindAI, result.Kind)
	assert.Equal(t, "Hail damage is covered under Section I.", result.Answer)
	// 最上位チャンクの類似度0.85 > 0.8 → high
	assert.Equal(t, ConfidenceHigh, result.Confidence)
	assert.Equal(t, 1, generator.calls)
	assert.Equal(t, 2, result.SearchResults)
	assert.Equal(t, 1, result.DocumentsSearched)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, "homeowners.pdf", result.Sources[0].Document)
	assert.Equal(t, "Section 1", result.Sources[0].Section)
	assert.Equal(t, 85, result.Sources[0].Similarity)
	assert.Equal(t, "High", result.Sources[0].Relevance)
	assert.Equal(t, "Medium", result.Sources[1].Relevance)
}

func TestComposer_AskGradesConfidenceByTopChunk(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		want       Confidence
	}{
		{name: "high above 0.8", similarity: 0.81, want: ConfidenceHigh},
		{name: "medium above 0.6", similarity: 0.7, want: ConfidenceMedium},
		{name: "low at 0.6 and below", similarity: 0.6, want: ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docID := uuid.New()
			searcher := &stubSearcher{
				results: []*search.ChunkResult{
					chunk(docID, 0, "content", tt.similarity),
				},
			}
			composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), searcher, &stubGenerator{answer: "answer"})

			result, err := composer.Ask(context.Background(), AskParams{Question: "q"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Confidence)
		})
	}
}

func TestComposer_AskExpertWithoutContext(t *testing.T) {
	explanation := "Flood requires a separate NFIP policy."
	m := &override.Match{
		Override: &override.Override{
			ID:                uuid.New(),
			OriginalQuestion:  "Is flood damage covered?",
			CorrectedAnswer:   "No, flood damage is excluded.",
			ExpertExplanation: &explanation,
		},
		Similarity: 0.93,
	}
	generator := &stubGenerator{answer: "should not be used"}
	matcher := &stubMatcher{match: mo.Some(m)}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, matcher, &stubSearcher{}, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "Is flood covered?"})
	require.NoError(t, err)

	assert.Equal(t, KindExpert, result.Kind)
	assert.Equal(t, "No, flood damage is excluded.", result.ExpertAnswer)
	assert.Equal(t, &explanation, result.ExpertExplanation)
	assert.Equal(t, ConfidenceExpert, result.Confidence)
	// コンテキストが無いので補足生成は行わない
	assert.Equal(t, 0, generator.calls)

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "Expert Override", result.Sources[0].Document)
	assert.Equal(t, "Verified Answer", result.Sources[0].Section)
	assert.Equal(t, 93, result.Sources[0].Similarity)
	assert.Equal(t, "Expert", result.Sources[0].Relevance)
}

func TestComposer_AskExpertWithContext(t *testing.T) {
	docID := uuid.New()
	m := &override.Match{
		Override: &override.Override{
			ID:               uuid.New(),
			OriginalQuestion: "Is flood damage covered?",
			CorrectedAnswer:  "No, flood damage is excluded.",
		},
		Similarity: 0.95,
	}
	generator := &stubGenerator{answer: "Per the policy, flood is excluded under Section 2."}
	matcher := &stubMatcher{match: mo.Some(m)}
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 1, "flood damage is excluded from coverage", 0.88),
		},
		names: map[uuid.UUID]string{docID: "homeowners.pdf"},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, matcher, searcher, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "Is flood covered?"})
	require.NoError(t, err)

	assert.Equal(t, KindExpertWithContext, result.Kind)
	assert.Equal(t, "No, flood damage is excluded.", result.ExpertAnswer)
	assert.Equal(t, "Per the policy, flood is excluded under Section 2.", result.Answer)
	assert.Equal(t, ConfidenceExpert, result.Confidence)
	assert.Equal(t, 1, generator.calls)

	// Override由来のソースが先頭、チャンク由来が後続
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "Expert Override", result.Sources[0].Document)
	assert.Equal(t, "homeowners.pdf", result.Sources[1].Document)
	assert.Equal(t, "Section 2", result.Sources[1].Section)
}

func TestComposer_AskExpertGenerationFailureDegradesToExpertOnly(t *testing.T) {
	docID := uuid.New()
	m := &override.Match{
		Override: &override.Override{
			ID:              uuid.New(),
			CorrectedAnswer: "Expert answer.",
		},
		Similarity: 0.9,
	}
	generator := &stubGenerator{err: errors.New("rate limited")}
	matcher := &stubMatcher{match: mo.Some(m)}
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 0, "related content", 0.9),
		},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, matcher, searcher, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "q"})
	require.NoError(t, err)

	// 補足生成の失敗はエキスパート回答のみに縮退する
	assert.Equal(t, KindExpert, result.Kind)
	assert.Equal(t, "Expert answer.", result.ExpertAnswer)
	assert.Empty(t, result.Answer)
}

func TestComposer_AskMatcherFailureDegradesToAIPath(t *testing.T) {
	docID := uuid.New()
	generator := &stubGenerator{answer: "AI answer."}
	matcher := &stubMatcher{err: errors.New("override index down")}
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 0, "content", 0.9),
		},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, matcher, searcher, generator)

	result, err := composer.Ask(context.Background(), AskParams{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, KindAI, result.Kind)
	assert.Equal(t, "AI answer.", result.Answer)
}

func TestComposer_AskSearchFailureFailsRequest(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("index unavailable")}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), searcher, &stubGenerator{})

	_, err := composer.Ask(context.Background(), AskParams{Question: "q"})
	require.Error(t, err)
}

func TestComposer_AskEmbedFailureFailsRequest(t *testing.T) {
	composer := newTestComposer(&stubEmbedder{err: errors.New("api down")}, noMatch(), &stubSearcher{}, &stubGenerator{})

	_, err := composer.Ask(context.Background(), AskParams{Question: "q"})
	require.Error(t, err)
}

func TestComposer_AskGenerationFailureFailsAIRequest(t *testing.T) {
	docID := uuid.New()
	searcher := &stubSearcher{
		results: []*search.ChunkResult{
			chunk(docID, 0, "content", 0.9),
		},
	}
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, noMatch(), searcher, &stubGenerator{err: errors.New("rate limited")})

	_, err := composer.Ask(context.Background(), AskParams{Question: "q"})
	require.Error(t, err)
}

func TestComposer_AskPassesDocumentScopeToMatcher(t *testing.T) {
	docID := uuid.New()
	matcher := noMatch()
	composer := newTestComposer(&stubEmbedder{vector: []float32{0.1}}, matcher, &stubSearcher{}, &stubGenerator{})

	_, err := composer.Ask(context.Background(), AskParams{
		Question:   "q",
		DocumentID: mo.Some(docID),
		UserID:     mo.Some("user-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{docID}, matcher.lastParams.DocumentIDs)
	assert.Equal(t, mo.Some("user-1"), matcher.lastParams.UserID)
	assert.Equal(t, override.DefaultCallerThreshold, matcher.lastParams.CallerThreshold)
}

func TestPreview_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("a", sourcePreviewLength+50)

	got := preview(long)
	assert.Len(t, []rune(got), sourcePreviewLength+3)
	assert.True(t, strings.HasSuffix(got, "..."))

	short := "short content"
	assert.Equal(t, short, preview(short))
}

func TestBuildAnswerPrompt_ContainsQuestionAndContext(t *testing.T) {
	prompt := BuildAnswerPrompt("Is hail covered?", "[policy.pdf - Section 1]:\nhail is covered")

	assert.Contains(t, prompt, `POLICYHOLDER QUESTION: "Is hail covered?"`)
	assert.Contains(t, prompt, "AVAILABLE POLICY INFORMATION:")
	assert.Contains(t, prompt, "[policy.pdf - Section 1]:")
	assert.Contains(t, prompt, "Use ONLY the policy information provided below")
}
