package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/astraops/paygate/internal/billing/domain"
)

const eventSaleCompleted = "PAYMENT.SALE.COMPLETED"

type webhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID            string `json:"id"`
		ParentPayment string `json:"parent_payment"`
	} `json:"resource"`
}

// HandlePayPalWebhook ingests provider notifications. Anything other
// than a completed sale is acknowledged without processing. A 2xx here
// tells PayPal to stop redelivering, so only retryable failures return
// 5xx; a body that does not decode is one of those, since the provider
// should not have produced it.
func (s *Server) HandlePayPalWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, fmt.Errorf("read webhook body: %w", err))
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		AbortWithError(c, fmt.Errorf("decode webhook body: %w", err))
		return
	}

	if evt.EventType != eventSaleCompleted {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
		return
	}

	if strings.TrimSpace(evt.Resource.ParentPayment) == "" {
		AbortWithError(c, billingdomain.ErrMalformedEvent)
		return
	}

	err = s.billingSvc.HandleCompletedSale(c.Request.Context(), billingdomain.CompletedSaleNotification{
		EventID:   evt.ID,
		PaymentID: evt.Resource.ParentPayment,
		Payload:   payload,
	})
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "success"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// HandlePayPalSuccess finalizes the payment the user just approved. The
// webhook may already have executed it; that path still ends in success
// for the user standing on the return page. The response always carries
// {status, message} since a browser, not the provider, is reading it.
func (s *Server) HandlePayPalSuccess(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Query("paymentId"))
	payerID := strings.TrimSpace(c.Query("PayerID"))
	if paymentID == "" || payerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "paymentId and PayerID are required",
		})
		return
	}

	sub, err := s.billingSvc.ConfirmRedirect(c.Request.Context(), paymentID, payerID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{
			"status":  "error",
			"message": "Payment execution failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"message":      "Payment confirmed",
		"subscription": sub,
	})
}

func (s *Server) HandlePayPalCancel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
