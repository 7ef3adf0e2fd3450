package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/override"
)

type createOverrideRequest struct {
	OriginalQuestion      string   `json:"originalQuestion" binding:"required"`
	OriginalAnswer        string   `json:"originalAnswer" binding:"required"`
	CorrectedAnswer       string   `json:"correctedAnswer" binding:"required"`
	ExpertExplanation     *string  `json:"expertExplanation"`
	ExpertID              string   `json:"expertId" binding:"required"`
	ConfidenceThreshold   *float64 `json:"confidenceThreshold"`
	AppliesToAllDocuments bool     `json:"appliesToAllDocuments"`
	DocumentIDs           []string `json:"documentIds"`
}

type updateOverrideRequest struct {
	CorrectedAnswer       *string   `json:"correctedAnswer"`
	ExpertExplanation     *string   `json:"expertExplanation"`
	ConfidenceThreshold   *float64  `json:"confidenceThreshold"`
	IsActive              *bool     `json:"isActive"`
	AppliesToAllDocuments *bool     `json:"appliesToAllDocuments"`
	DocumentIDs           *[]string `json:"documentIds"`
	ChangedBy             string    `json:"changedBy"`
	ChangeReason          string    `json:"changeReason"`
}

// handleListOverrides はOverride一覧を返す。デフォルトはアクティブのみ
func (s *Server) handleListOverrides(c *gin.Context) {
	isActive := true
	if v := c.Query("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active parameter"})
			return
		}
		isActive = parsed
	}

	overrides, err := s.overrides.List(c.Request.Context(), isActive)
	if err != nil {
		s.logger.Error("failed to list overrides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list overrides"})
		return
	}

	if overrides == nil {
		overrides = []*override.Override{}
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

// handleCreateOverride は新しいOverrideを作成する
func (s *Server) handleCreateOverride(c *gin.Context) {
	var req createOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "originalQuestion, originalAnswer, correctedAnswer and expertId are required"})
		return
	}

	documentIDs, err := parseUUIDs(req.DocumentIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document ID"})
		return
	}

	created, err := s.overrides.Create(c.Request.Context(), override.CreateParams{
		OriginalQuestion:      req.OriginalQuestion,
		OriginalAnswer:        req.OriginalAnswer,
		CorrectedAnswer:       req.CorrectedAnswer,
		ExpertExplanation:     mo.PointerToOption(req.ExpertExplanation),
		ExpertID:              req.ExpertID,
		ConfidenceThreshold:   mo.PointerToOption(req.ConfidenceThreshold),
		AppliesToAllDocuments: req.AppliesToAllDocuments,
		DocumentIDs:           documentIDs,
	})
	if err != nil {
		if errors.Is(err, override.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("failed to create override", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create override"})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// handleGetOverride はIDでOverrideを取得する
func (s *Server) handleGetOverride(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	o, err := s.overrides.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, override.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "override not found"})
			return
		}
		s.logger.Error("failed to get override", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get override"})
		return
	}

	c.JSON(http.StatusOK, o)
}

// handleUpdateOverride はOverrideを部分更新する
func (s *Server) handleUpdateOverride(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	var req updateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	documentIDs := mo.None[[]uuid.UUID]()
	if req.DocumentIDs != nil {
		ids, err := parseUUIDs(*req.DocumentIDs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document ID"})
			return
		}
		documentIDs = mo.Some(ids)
	}

	updated, err := s.overrides.Update(c.Request.Context(), override.UpdateParams{
		ID:                    id,
		CorrectedAnswer:       mo.PointerToOption(req.CorrectedAnswer),
		ExpertExplanation:     mo.PointerToOption(req.ExpertExplanation),
		ConfidenceThreshold:   mo.PointerToOption(req.ConfidenceThreshold),
		IsActive:              mo.PointerToOption(req.IsActive),
		AppliesToAllDocuments: mo.PointerToOption(req.AppliesToAllDocuments),
		DocumentIDs:           documentIDs,
		ChangedBy:             req.ChangedBy,
		ChangeReason:          req.ChangeReason,
	})
	if err != nil {
		if errors.Is(err, override.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, override.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "override not found"})
			return
		}
		s.logger.Error("failed to update override", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update override"})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// handleListOverrideVersions はOverrideの変更履歴を返す
func (s *Server) handleListOverrideVersions(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	versions, err := s.overrides.ListVersions(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("failed to list override versions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		return
	}

	if versions == nil {
		versions = []*override.Version{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// handleListOverrideUsage はOverrideの利用記録を返す
func (s *Server) handleListOverrideUsage(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = parsed
	}

	records, err := s.overrides.ListUsage(c.Request.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list override usage", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list usage records"})
		return
	}

	if records == nil {
		records = []*override.UsageRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"usage": records})
}

// pathUUID はパスパラメータのIDをUUIDとして取り出す
func pathUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}

// parseUUIDs は文字列のID配列をUUID配列に変換する
func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
