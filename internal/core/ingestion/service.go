package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrDocumentNotFound は指定されたドキュメントが存在しない場合のエラー
var ErrDocumentNotFound = errors.New("document not found")

// embedBatchSize は1回のBatch Embeddingに渡すチャンク数の上限
const embedBatchSize = 100

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はベクトル次元数を返す
	Dimension() int
}

// Service はドキュメント取り込みのユースケースを提供する
type Service struct {
	repo         Repository
	embedder     Embedder
	maxChunkSize int
	logger       *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithLogger は Service にロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxChunkSize はチャンクの最大文字数を上書きする
func WithMaxChunkSize(size int) ServiceOption {
	return func(s *Service) {
		s.maxChunkSize = size
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, embedder Embedder, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:         repo,
		embedder:     embedder,
		maxChunkSize: DefaultMaxChunkSize,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Register は抽出済みテキストからドキュメントを登録し、チャンク化とEmbedding生成を行う
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	if params.FileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if params.ExtractedText == "" {
		return nil, fmt.Errorf("extracted text is required")
	}

	doc, err := s.repo.CreateDocument(ctx, &Document{
		FileName:      params.FileName,
		FileType:      params.FileType,
		FileSize:      params.FileSize,
		ExtractedText: params.ExtractedText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	chunks, err := s.buildChunks(ctx, doc.ID, params.ExtractedText)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	s.logger.Info("document registered",
		"documentID", doc.ID.String(),
		"fileName", doc.FileName,
		"chunks", len(chunks),
	)

	return &RegisterResult{
		Document:    doc,
		TotalChunks: len(chunks),
	}, nil
}

// Reprocess は保存済みテキストからチャンクとEmbeddingを丸ごと作り直す
func (s *Service) Reprocess(ctx context.Context, documentID uuid.UUID) (*RegisterResult, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("document ID is required")
	}

	docOpt, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := docOpt.Get()
	if !ok {
		return nil, ErrDocumentNotFound
	}
	if doc.ExtractedText == "" {
		return nil, fmt.Errorf("document has no extracted text to reprocess")
	}

	chunks, err := s.buildChunks(ctx, doc.ID, doc.ExtractedText)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return nil, fmt.Errorf("failed to replace chunks: %w", err)
	}

	s.logger.Info("document reprocessed",
		"documentID", doc.ID.String(),
		"chunks", len(chunks),
	)

	return &RegisterResult{
		Document:    doc,
		TotalChunks: len(chunks),
	}, nil
}

// buildChunks はテキストを分割してEmbeddingを付与したチャンク列を構築する
func (s *Service) buildChunks(ctx context.Context, documentID uuid.UUID, text string) ([]*Chunk, error) {
	textChunks := SplitTextIntoChunks(text, s.maxChunkSize)
	if len(textChunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from extracted text")
	}

	chunks := make([]*Chunk, 0, len(textChunks))
	for start := 0; start < len(textChunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(textChunks) {
			end = len(textChunks)
		}

		batch := textChunks[start:end]
		texts := make([]string, 0, len(batch))
		for _, tc := range batch {
			texts = append(texts, tc.Content)
		}

		embeddings, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(batch))
		}

		for i, tc := range batch {
			chunks = append(chunks, &Chunk{
				DocumentID: documentID,
				ChunkIndex: tc.Index,
				Content:    tc.Content,
				Embedding:  embeddings[i],
			})
		}
	}

	return chunks, nil
}

// RepairEmbeddings はEmbeddingが欠落・次元不一致のチャンクを再生成する
// 1件の失敗で全体を止めず、修復数と失敗数を集計して返す
func (s *Service) RepairEmbeddings(ctx context.Context) (*RepairResult, error) {
	chunks, err := s.repo.ListChunksNeedingRepair(ctx, s.embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks needing repair: %w", err)
	}

	result := &RepairResult{TotalChunks: len(chunks)}
	for _, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			s.logger.Error("failed to re-embed chunk",
				"chunkID", chunk.ID.String(),
				"error", err,
			)
			result.ErrorCount++
			continue
		}

		if err := s.repo.UpdateChunkEmbedding(ctx, chunk.ID, embedding); err != nil {
			s.logger.Error("failed to update chunk embedding",
				"chunkID", chunk.ID.String(),
				"error", err,
			)
			result.ErrorCount++
			continue
		}

		result.FixedCount++
	}

	s.logger.Info("embedding repair completed",
		"total", result.TotalChunks,
		"fixed", result.FixedCount,
		"errors", result.ErrorCount,
	)

	return result, nil
}

// List はドキュメント一覧を返す
func (s *Service) List(ctx context.Context) ([]*Document, error) {
	docs, err := s.repo.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Get はIDでドキュメントを取得する
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("document ID is required")
	}

	docOpt, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := docOpt.Get()
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete はドキュメントとそのチャンクを削除する
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("document ID is required")
	}

	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	s.logger.Info("document deleted", "documentID", id.String())
	return nil
}
