package tier

import (
	"errors"
	"fmt"
)

// ErrUnknownTier is returned when a tier identifier is not in the catalog.
// Callers must treat it as a hard stop, never as a default grant.
var ErrUnknownTier = errors.New("unknown_tier")

// Tier is one purchasable subscription tier. Immutable after catalog load.
type Tier struct {
	ID             string   `mapstructure:"id" json:"id"`
	Name           string   `mapstructure:"name" json:"name"`
	AmountCents    int64    `mapstructure:"amount_cents" json:"amount_cents"`
	Hours          int      `mapstructure:"hours" json:"hours"`
	LegacyPriceIDs []string `mapstructure:"legacy_price_ids" json:"legacy_price_ids,omitempty"`
}

// AmountUSD renders the price as the decimal string the gateway expects.
func (t Tier) AmountUSD() string {
	return fmt.Sprintf("%d.%02d", t.AmountCents/100, t.AmountCents%100)
}
