package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/policy-qa/internal/core/answer"
	"github.com/jinford/policy-qa/internal/core/override"
	"github.com/jinford/policy-qa/internal/core/search"
	"github.com/jinford/policy-qa/internal/core/settings"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateAnswer(ctx context.Context, question string, prompt string) (string, error) {
	return "Hail damage is covered.", nil
}

type stubMatcher struct{}

func (stubMatcher) Match(ctx context.Context, params override.MatchParams) (mo.Option[*override.Match], error) {
	return mo.None[*override.Match](), nil
}

type stubOverrideStore struct{}

func (stubOverrideStore) SearchCandidates(ctx context.Context, query override.CandidateQuery) ([]*override.Candidate, error) {
	return nil, nil
}

func (stubOverrideStore) RecordUsage(ctx context.Context, overrideID uuid.UUID, questionAsked string, similarity float64, userID mo.Option[string]) error {
	return nil
}

func (stubOverrideStore) Create(ctx context.Context, o *override.Override, initialVersion *override.Version) (*override.Override, error) {
	created := *o
	created.ID = uuid.New()
	return &created, nil
}

func (stubOverrideStore) Get(ctx context.Context, id uuid.UUID) (mo.Option[*override.Override], error) {
	return mo.None[*override.Override](), nil
}

func (stubOverrideStore) List(ctx context.Context, isActive bool) ([]*override.Override, error) {
	return nil, nil
}

func (stubOverrideStore) Update(ctx context.Context, params override.UpdateParams) (*override.Override, error) {
	return nil, override.ErrNotFound
}

func (stubOverrideStore) AppendVersion(ctx context.Context, v *override.Version) (*override.Version, error) {
	return v, nil
}

func (stubOverrideStore) ListVersions(ctx context.Context, overrideID uuid.UUID) ([]*override.Version, error) {
	return nil, nil
}

func (stubOverrideStore) ListUsage(ctx context.Context, overrideID uuid.UUID, limit int) ([]*override.UsageRecord, error) {
	return nil, nil
}

type stubSearcher struct {
	results []*search.ChunkResult
}

func (s *stubSearcher) Search(ctx context.Context, params search.SearchParams) ([]*search.ChunkResult, error) {
	return s.results, nil
}

func (s *stubSearcher) DocumentNames(ctx context.Context, results []*search.ChunkResult) (map[uuid.UUID]string, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
}

func newTestServer(searcher *stubSearcher) (*Server, *settings.Store) {
	gin.SetMode(gin.TestMode)

	store := settings.NewStore()
	composer := answer.NewComposer(
		stubEmbedder{},
		stubMatcher{},
		searcher,
		search.NewContextAssembler(nil),
		stubGenerator{},
		store,
		answer.WithComposerLogger(testLogger()),
	)
	overrides := override.NewService(stubOverrideStore{}, stubEmbedder{}, override.WithLogger(testLogger()))

	srv := New(composer, overrides, nil, store, WithServerLogger(testLogger()))
	return srv, store
}

func TestServer_Healthcheck(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_GetSettingsReturnsDefaults(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search-settings", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got settings.SearchSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, settings.DefaultSettings(), got)
}

func TestServer_UpdateSettingsPartial(t *testing.T) {
	srv, store := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/search-settings",
		strings.NewReader(`{"similarityThreshold": 0.5}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.5, store.Get().SimilarityThreshold)
	assert.Equal(t, 15, store.Get().MaxResults)
}

func TestServer_UpdateSettingsRejectsOutOfRange(t *testing.T) {
	srv, store := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/search-settings",
		strings.NewReader(`{"similarityThreshold": 1.5, "maxResults": 20}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	// 拒否された更新は一切反映されない
	assert.Equal(t, settings.DefaultSettings(), store.Get())
}

func TestServer_CreateOverrideRejectsInvalidThreshold(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/overrides",
		strings.NewReader(`{
			"originalQuestion": "Is hail covered?",
			"originalAnswer": "Yes.",
			"correctedAnswer": "Only above the deductible.",
			"expertId": "expert-1",
			"confidenceThreshold": 1.5
		}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// サービス層の検証エラーは400として返す
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_UpdateOverrideRejectsInvalidThreshold(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/overrides/"+uuid.NewString(),
		strings.NewReader(`{"confidenceThreshold": -0.1}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AskRequiresQuestion(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/qa", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AskRejectsInvalidDocumentID(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/qa",
		strings.NewReader(`{"question": "Is hail covered?", "documentId": "not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AskReturnsComposedAnswer(t *testing.T) {
	docID := uuid.New()
	searcher := &stubSearcher{
		results: []*search.ChunkResult{{
			ChunkID:    uuid.New(),
			DocumentID: docID,
			ChunkIndex: 0,
			Content:    "hail damage to the dwelling is covered",
			Similarity: 0.85,
		}},
	}
	srv, _ := newTestServer(searcher)
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/qa",
		strings.NewReader(`{"question": "Is hail covered?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got answer.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, answer.KindAI, got.Kind)
	assert.Equal(t, "Hail damage is covered.", got.Answer)
	assert.Equal(t, answer.ConfidenceHigh, got.Confidence)
}

func TestServer_AskNoResultsReturnsNoneKind(t *testing.T) {
	srv, _ := newTestServer(&stubSearcher{})
	router := srv.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/qa",
		strings.NewReader(`{"question": "Is hail covered?"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got answer.Answer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, answer.KindNone, got.Kind)
	assert.Equal(t, answer.ConfidenceNone, got.Confidence)
}
