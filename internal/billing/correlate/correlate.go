// Package correlate maps a gateway payment record back to the user and
// tier that originated it. Checkout stamps the user id into the payment's
// custom field and the tier id into the line-item SKU; this package is the
// inverse of that stamping.
package correlate

import (
	"errors"
	"strings"

	"github.com/astraops/paygate/internal/paypal"
	"github.com/astraops/paygate/internal/tier"
)

// ErrMissingCorrelation means the payment carries no usable user
// reference. Such a payment can never be reconciled, no matter how often
// it is retried.
var ErrMissingCorrelation = errors.New("missing_correlation")

// Resolution is everything reconciliation needs from one payment.
type Resolution struct {
	PaymentID  string
	UserID     string
	TierID     string
	Tier       tier.Tier
	PayerEmail string
}

// Resolve extracts the correlation identifiers from a payment. It returns
// ErrMissingCorrelation when no user id is present and tier.ErrUnknownTier
// when the payment has no line items or its first SKU is not in the
// catalog. Only the first transaction and the first line item are
// consulted; checkout never creates more than one of either.
func Resolve(p *paypal.Payment, catalog *tier.Catalog) (Resolution, error) {
	if p == nil || p.ID == "" {
		return Resolution{}, ErrMissingCorrelation
	}
	if len(p.Transactions) == 0 {
		return Resolution{}, ErrMissingCorrelation
	}
	tx := p.Transactions[0]

	userID := strings.TrimSpace(tx.Custom)
	if userID == "" {
		return Resolution{}, ErrMissingCorrelation
	}

	if tx.ItemList == nil || len(tx.ItemList.Items) == 0 {
		return Resolution{}, tier.ErrUnknownTier
	}
	t, err := catalog.Resolve(tx.ItemList.Items[0].SKU)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		PaymentID:  p.ID,
		UserID:     userID,
		TierID:     t.ID,
		Tier:       t,
		PayerEmail: p.Payer.PayerInfo.Email,
	}, nil
}
