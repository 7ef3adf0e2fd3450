package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinford/policy-qa/internal/core/ingestion"
)

type registerDocumentRequest struct {
	FileName      string `json:"fileName" binding:"required"`
	FileType      string `json:"fileType"`
	FileSize      int64  `json:"fileSize"`
	ExtractedText string `json:"extractedText" binding:"required"`
}

// handleListDocuments はドキュメント一覧を返す
func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.documents.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list documents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}

	if docs == nil {
		docs = []*ingestion.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// handleRegisterDocument は抽出済みテキストからドキュメントを登録する
func (s *Server) handleRegisterDocument(c *gin.Context) {
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName and extractedText are required"})
		return
	}

	result, err := s.documents.Register(c.Request.Context(), ingestion.RegisterParams{
		FileName:      req.FileName,
		FileType:      req.FileType,
		FileSize:      req.FileSize,
		ExtractedText: req.ExtractedText,
	})
	if err != nil {
		s.logger.Error("failed to register document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register document"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"document":    result.Document,
		"totalChunks": result.TotalChunks,
	})
}

// handleGetDocument はIDでドキュメントを取得する
func (s *Server) handleGetDocument(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	doc, err := s.documents.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		s.logger.Error("failed to get document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get document"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// handleDeleteDocument はドキュメントとそのチャンクを削除する
func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	if err := s.documents.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		s.logger.Error("failed to delete document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// handleReprocessDocument は保存済みテキストからチャンクを作り直す
func (s *Server) handleReprocessDocument(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	result, err := s.documents.Reprocess(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ingestion.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		s.logger.Error("failed to reprocess document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reprocess document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"document":    result.Document,
		"totalChunks": result.TotalChunks,
	})
}

// handleRepairEmbeddings はEmbeddingが欠落・次元不一致のチャンクを修復する
func (s *Server) handleRepairEmbeddings(c *gin.Context) {
	result, err := s.documents.RepairEmbeddings(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to repair embeddings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to repair embeddings"})
		return
	}

	c.JSON(http.StatusOK, result)
}
