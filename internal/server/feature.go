package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/astraops/paygate/internal/billing/domain"
)

type setFlagRequest struct {
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

func (s *Server) ListFlags(c *gin.Context) {
	flags, err := s.flags.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (s *Server) GetFlag(c *gin.Context) {
	f, err := s.flags.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if f == nil {
		AbortWithError(c, billingdomain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flag": f})
}

func (s *Server) SetFlag(c *gin.Context) {
	var req setFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, billingdomain.ErrInvalidRequest)
		return
	}
	if err := s.flags.Set(c.Request.Context(), c.Param("name"), req.Enabled, req.Description); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeleteFlag(c *gin.Context) {
	if err := s.flags.Delete(c.Request.Context(), c.Param("name")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
