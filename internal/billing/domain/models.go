// Package domain contains persistence models and contracts for payment
// reconciliation.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ProviderPayPal is the only payment provider this service reconciles.
const ProviderPayPal = "paypal"

// Term is the fixed subscription period granted per payment. No
// partial-period math is performed.
const Term = 30 * 24 * time.Hour

// SubscriptionKey derives the subscription primary key from the provider
// payment id. The derived key is the natural idempotency key: at most one
// subscription row can exist per payment.
func SubscriptionKey(paymentID string) string {
	return ProviderPayPal + "_" + paymentID
}

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Customer is the billing identity for a user. The key is supplied by the
// owning account system, never generated here. Rows are created on first
// successful payment and deactivated, not deleted, on cancellation.
type Customer struct {
	UserID    string    `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email     string    `gorm:"not null" json:"email"`
	Active    bool      `gorm:"not null;default:false" json:"active"`
	Provider  string    `gorm:"type:text;not null" json:"provider"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string { return "billing_customers" }

// Subscription captures one paid period. Replayed confirmations for the same
// payment refresh the period window but never change the recorded tier.
type Subscription struct {
	ID          string             `gorm:"primaryKey" json:"id"`
	UserID      string             `gorm:"not null;index" json:"user_id"`
	Status      SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	TierID      string             `gorm:"type:text;not null" json:"tier_id"`
	PeriodStart time.Time          `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time          `gorm:"not null" json:"period_end"`
	Metadata    datatypes.JSONMap  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Subscription) TableName() string { return "billing_subscriptions" }

// Expired reports whether the period has lapsed at the given instant.
// Expiry is a read-time check, not an active sweep.
func (s Subscription) Expired(now time.Time) bool {
	return now.After(s.PeriodEnd)
}

// EventRecord logs one webhook delivery. Unique on (provider,
// provider_event_id) so redelivered events short-circuit once processed.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:idx_payment_events_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	PaymentID       string         `gorm:"type:text;not null" json:"payment_id"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }
