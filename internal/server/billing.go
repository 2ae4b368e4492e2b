package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/astraops/paygate/internal/billing/domain"
)

// StartCheckout creates an approval-pending payment and returns the URL
// the client must redirect the user to.
func (s *Server) StartCheckout(c *gin.Context) {
	if s.flags != nil && s.flags.IsEnabled(c.Request.Context(), "checkout_disabled") {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
			"type":    "service_unavailable",
			"message": "checkout is temporarily disabled",
		}})
		return
	}

	var req billingdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, billingdomain.ErrInvalidRequest)
		return
	}

	resp, err := s.billingSvc.StartCheckout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetSubscriptionByUser returns the user's most recent subscription with
// expiry applied at read time.
func (s *Server) GetSubscriptionByUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		AbortWithError(c, billingdomain.ErrInvalidRequest)
		return
	}

	sub, err := s.billingSvc.SubscriptionForUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
