package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/answer"
)

type askRequest struct {
	Question   string  `json:"question" binding:"required"`
	DocumentID *string `json:"documentId"`
	UserID     *string `json:"userId"`
}

// handleAsk は質問への回答を合成して返す
func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}

	documentID := mo.None[uuid.UUID]()
	if req.DocumentID != nil && *req.DocumentID != "" {
		id, err := uuid.Parse(*req.DocumentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document ID"})
			return
		}
		documentID = mo.Some(id)
	}

	result, err := s.composer.Ask(c.Request.Context(), answer.AskParams{
		Question:   req.Question,
		DocumentID: documentID,
		UserID:     mo.PointerToOption(req.UserID),
	})
	if err != nil {
		if errors.Is(err, answer.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("failed to compose answer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compose answer"})
		return
	}

	c.JSON(http.StatusOK, result)
}
