package domain

import (
	"context"

	"github.com/astraops/paygate/internal/billing/correlate"
)

// CheckoutRequest starts a PayPal checkout for a tier.
type CheckoutRequest struct {
	UserID string `json:"user_id" binding:"required"`
	TierID string `json:"tier_id" binding:"required"`
}

// CheckoutResponse carries the approval redirect for the created payment.
type CheckoutResponse struct {
	PaymentID   string `json:"payment_id"`
	ApprovalURL string `json:"approval_url"`
}

// CompletedSaleNotification is the distilled form of a completed-sale
// webhook delivery.
type CompletedSaleNotification struct {
	EventID   string
	PaymentID string
	Payload   []byte
}

// Service reconciles approved PayPal payments into billing state. The
// webhook and the redirect entry points race freely; both converge on the
// same customer and subscription rows.
type Service interface {
	// StartCheckout creates an approval-pending payment at the gateway
	// for the requested tier.
	StartCheckout(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)

	// HandleCompletedSale processes a completed-sale webhook
	// notification. Terminal data errors are absorbed after logging so
	// the provider does not redeliver; storage errors propagate.
	HandleCompletedSale(ctx context.Context, notif CompletedSaleNotification) error

	// ConfirmRedirect executes the approved payment named in the return
	// redirect and reconciles it. A payment already executed by the
	// racing webhook is not an error.
	ConfirmRedirect(ctx context.Context, paymentID, payerID string) (Subscription, error)

	// Reconcile applies one resolved payment to storage. Safe to call
	// any number of times for the same payment.
	Reconcile(ctx context.Context, res correlate.Resolution) (Customer, Subscription, error)

	// SubscriptionForUser returns the user's most recent subscription
	// with read-time expiry applied, or ErrNotFound.
	SubscriptionForUser(ctx context.Context, userID string) (Subscription, error)
}
