package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": s.tiers.Tiers()})
}

func (s *Server) GetTierByID(c *gin.Context) {
	t, err := s.tiers.Resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
			"type":    "not_found",
			"code":    "unknown_tier",
			"message": "unknown tier",
		}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": t})
}
