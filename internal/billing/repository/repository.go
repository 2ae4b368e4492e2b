// Package repository implements billing storage on gorm with
// conflict-aware upserts so concurrent writers for the same payment
// converge without duplicate-key failures.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/astraops/paygate/internal/billing/domain"
	pkgdb "github.com/astraops/paygate/pkg/db"
)

type billingRepository struct{}

// New returns the gorm-backed billing repository.
func New() domain.Repository {
	return &billingRepository{}
}

// UpsertCustomer activates the customer row for the user, creating it on
// first payment. Email is recorded once on insert; later confirmations
// keep whatever was stored first. clause.OnConflict lets gorm emit the
// conflict syntax of whichever dialect is connected.
func (r *billingRepository) UpsertCustomer(ctx context.Context, db *gorm.DB, c *domain.Customer) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "provider", "updated_at"}),
	}).Create(c).Error
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.UserID, err)
	}
	return nil
}

// UpsertSubscription refreshes the period window on replay. tier_id and
// metadata are deliberately absent from the update list: the first writer
// for a payment decides the tier.
func (r *billingRepository) UpsertSubscription(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "period_start", "period_end", "updated_at"}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", s.ID, err)
	}
	return nil
}

func (r *billingRepository) FindCustomer(ctx context.Context, db *gorm.DB, userID string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer %s: %w", userID, err)
	}
	return &c, nil
}

func (r *billingRepository) FindSubscription(ctx context.Context, db *gorm.DB, id string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription %s: %w", id, err)
	}
	return &s, nil
}

func (r *billingRepository) SubscriptionsByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("period_end DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", userID, err)
	}
	return subs, nil
}

// InsertEvent claims the delivery. DoNothing plus the affected-row count
// turns the unique constraint into an atomic first-claim check; the
// duplicate-key guard covers dialects that report the conflict as an
// error instead.
func (r *billingRepository) InsertEvent(ctx context.Context, db *gorm.DB, e *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(e)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("insert event %s: %w", e.ProviderEventID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *billingRepository) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var e domain.EventRecord
	err := db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event %s: %w", providerEventID, err)
	}
	return &e, nil
}

func (r *billingRepository) MarkEventProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, at time.Time) error {
	err := db.WithContext(ctx).
		Model(&domain.EventRecord{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Update("processed_at", at).Error
	if err != nil {
		return fmt.Errorf("mark event %s processed: %w", providerEventID, err)
	}
	return nil
}
