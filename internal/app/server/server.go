package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jinford/policy-qa/internal/core/answer"
	"github.com/jinford/policy-qa/internal/core/ingestion"
	"github.com/jinford/policy-qa/internal/core/override"
	"github.com/jinford/policy-qa/internal/core/settings"
)

// Server はHTTP APIサーバー
type Server struct {
	composer  *answer.Composer
	overrides *override.Service
	documents *ingestion.Service
	settings  *settings.Store
	origins   []string
	logger    *slog.Logger
}

// Option は Server のオプション設定
type Option func(*Server)

// WithAllowedOrigins はCORSの許可オリジンを設定する
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithServerLogger は Server にロガーを設定する
func WithServerLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New は新しいServerを作成する
func New(
	composer *answer.Composer,
	overrides *override.Service,
	documents *ingestion.Service,
	settingsStore *settings.Store,
	opts ...Option,
) *Server {
	s := &Server{
		composer:  composer,
		overrides: overrides,
		documents: documents,
		settings:  settingsStore,
		origins:   []string{"*"},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Router はルーティング設定済みのginエンジンを返す
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.origins) == 1 && s.origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.origins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthcheck", s.handleHealthcheck)

	api := router.Group("/api")
	{
		api.POST("/qa", s.handleAsk)

		api.GET("/search-settings", s.handleGetSettings)
		api.POST("/search-settings", s.handleUpdateSettings)

		api.GET("/overrides", s.handleListOverrides)
		api.POST("/overrides", s.handleCreateOverride)
		api.GET("/overrides/:id", s.handleGetOverride)
		api.PATCH("/overrides/:id", s.handleUpdateOverride)
		api.GET("/overrides/:id/versions", s.handleListOverrideVersions)
		api.GET("/overrides/:id/usage", s.handleListOverrideUsage)

		api.GET("/documents", s.handleListDocuments)
		api.POST("/documents", s.handleRegisterDocument)
		api.GET("/documents/:id", s.handleGetDocument)
		api.DELETE("/documents/:id", s.handleDeleteDocument)
		api.POST("/documents/:id/reprocess", s.handleReprocessDocument)
		api.POST("/documents/repair-embeddings", s.handleRepairEmbeddings)
	}

	return router
}

// handleHealthcheck は死活監視用のエンドポイント
func (s *Server) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
