package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/jinford/policy-qa/internal/core/settings"
)

type updateSettingsRequest struct {
	SimilarityThreshold *float64 `json:"similarityThreshold"`
	MaxResults          *int     `json:"maxResults"`
	ContextChunks       *int     `json:"contextChunks"`
}

// handleGetSettings は現在の検索設定を返す
func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Get())
}

// handleUpdateSettings は検索設定を部分更新する
// いずれかの値が範囲外の場合は更新全体を拒否する
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updated, err := s.settings.Update(settings.UpdateParams{
		SimilarityThreshold: mo.PointerToOption(req.SimilarityThreshold),
		MaxResults:          mo.PointerToOption(req.MaxResults),
		ContextChunks:       mo.PointerToOption(req.ContextChunks),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}
