package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository is the storage contract for reconciliation state. Every write
// is conflict-aware so that concurrent confirmations of the same payment
// converge on a single row instead of failing with duplicate-key errors.
type Repository interface {
	// UpsertCustomer inserts the customer or, if the user already has a
	// row, reactivates it. The stored email is written on first insert
	// and left untouched afterwards.
	UpsertCustomer(ctx context.Context, db *gorm.DB, c *Customer) error

	// UpsertSubscription inserts the subscription or refreshes the
	// period window of an existing row. The tier and metadata recorded
	// by the first writer are never overwritten.
	UpsertSubscription(ctx context.Context, db *gorm.DB, s *Subscription) error

	FindCustomer(ctx context.Context, db *gorm.DB, userID string) (*Customer, error)
	FindSubscription(ctx context.Context, db *gorm.DB, id string) (*Subscription, error)

	// SubscriptionsByUser returns the user's subscriptions, most recent
	// period first.
	SubscriptionsByUser(ctx context.Context, db *gorm.DB, userID string) ([]Subscription, error)

	// InsertEvent records a webhook delivery. It reports false without
	// error when an event with the same (provider, provider_event_id)
	// already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, e *EventRecord) (bool, error)

	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, at time.Time) error
}
