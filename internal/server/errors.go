package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/astraops/paygate/internal/billing/correlate"
	billingdomain "github.com/astraops/paygate/internal/billing/domain"
	"github.com/astraops/paygate/internal/modelcatalog"
	"github.com/astraops/paygate/internal/paypal"
	"github.com/astraops/paygate/internal/tier"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last collected error as JSON when a
// handler aborted without writing a response itself.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, billingdomain.ErrInvalidRequest),
		errors.Is(err, billingdomain.ErrMalformedEvent):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, tier.ErrUnknownTier):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    "unknown_tier",
			Message: "unknown tier",
		}
	case errors.Is(err, correlate.ErrMissingCorrelation):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    "missing_correlation",
			Message: "payment carries no user reference",
		}
	case errors.Is(err, modelcatalog.ErrUnknownModel):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    "unknown_model",
			Message: "unknown model",
		}
	case errors.Is(err, billingdomain.ErrNotFound),
		errors.Is(err, paypal.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case isGatewayError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway rejected the request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isGatewayError(err error) bool {
	var apiErr *paypal.APIError
	return errors.As(err, &apiErr)
}

// classifyErrorForLog labels errors for the request log without leaking
// internals into the response path.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "", ""
	}
}
