package cli

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/policy-qa/internal/core/answer"
	"github.com/jinford/policy-qa/internal/core/ingestion"
	"github.com/jinford/policy-qa/internal/core/override"
	"github.com/jinford/policy-qa/internal/core/search"
	"github.com/jinford/policy-qa/internal/core/settings"
	infraopenai "github.com/jinford/policy-qa/internal/infra/openai"
	"github.com/jinford/policy-qa/internal/infra/postgres"
	infraredis "github.com/jinford/policy-qa/internal/infra/redis"
	"github.com/jinford/policy-qa/internal/infra/tokenizer"
	"github.com/jinford/policy-qa/internal/platform/logger"
	"github.com/jinford/policy-qa/pkg/config"
	"github.com/jinford/policy-qa/pkg/db"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	DB        *db.DB
	Settings  *settings.Store
	Documents *ingestion.Service
	Overrides *override.Service
	Composer  *answer.Composer

	redisClient *goredis.Client
	logger      *slog.Logger
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	database, err := db.New(ctx, db.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	openaiEmbedder := infraopenai.NewEmbedder(cfg.OpenAI.APIKey,
		infraopenai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		infraopenai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
	)

	// Redisが設定されている場合のみEmbeddingキャッシュを有効にする
	var embedder ingestion.Embedder = openaiEmbedder
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		embedder = infraredis.NewCachedEmbedder(openaiEmbedder, redisClient,
			infraredis.WithLogger(appLogger),
		)
	}

	generator, err := infraopenai.NewClient(cfg.OpenAI.APIKey,
		infraopenai.WithModel(cfg.OpenAI.LLMModel),
		infraopenai.WithTemperature(cfg.OpenAI.Temperature),
		infraopenai.WithMaxTokens(cfg.OpenAI.MaxTokens),
	)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("OpenAIクライアントの初期化に失敗: %w", err)
	}

	counter, err := tokenizer.NewTokenCounter()
	if err != nil {
		// トークンカウンタが無くてもコンテキスト組み立ては動作する（上限なし）
		appLogger.Warn("token counter unavailable, context token limit disabled", "error", err)
		counter = nil
	}

	searchRepo := postgres.NewSearchRepository(database.Pool)
	documentRepo := postgres.NewDocumentRepository(database.Pool)
	overrideRepo := postgres.NewOverrideRepository(database.Pool)

	settingsStore := settings.NewStore()
	searchService := search.NewChunkSearchService(searchRepo, search.WithSearchLogger(appLogger))

	var tokenCounter search.TokenCounter
	if counter != nil {
		tokenCounter = counter
	}
	assembler := search.NewContextAssembler(tokenCounter)

	documents := ingestion.NewService(documentRepo, embedder, ingestion.WithLogger(appLogger))
	overrides := override.NewService(overrideRepo, embedder, override.WithLogger(appLogger))

	composer := answer.NewComposer(
		embedder,
		overrides,
		searchService,
		assembler,
		generator,
		settingsStore,
		answer.WithComposerLogger(appLogger),
	)

	return &AppContext{
		Config:      cfg,
		DB:          database,
		Settings:    settingsStore,
		Documents:   documents,
		Overrides:   overrides,
		Composer:    composer,
		redisClient: redisClient,
		logger:      appLogger,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.redisClient != nil {
		if err := ac.redisClient.Close(); err != nil {
			ac.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if ac.DB != nil {
		ac.DB.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
