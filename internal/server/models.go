package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ListModels returns the model catalog, optionally filtered to the
// models servable on one tier.
func (s *Server) ListModels(c *gin.Context) {
	tierID := strings.TrimSpace(c.Query("tier"))
	if tierID == "" {
		c.JSON(http.StatusOK, gin.H{"models": s.models.Models()})
		return
	}

	if _, err := s.tiers.Resolve(tierID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": s.models.ModelsForTier(tierID)})
}
