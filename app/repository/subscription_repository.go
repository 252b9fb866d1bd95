package repository

import (
	"time"

	"github.com/nutricoachhq/NutriCoach/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &gormSubscriptionRepository{db: db}
}

// guarded returns a conditional assignment that only takes the incoming
// value when the incoming event timestamp is not older than the stored one.
// MySQL evaluates ON DUPLICATE KEY assignments left to right, but the guard
// stays consistent either way: when event_ts is kept, every later comparison
// still sees the old value; when it advances, later comparisons are
// VALUES(event_ts) >= VALUES(event_ts) and accept as well.
func guarded(column string) interface{} {
	return gorm.Expr("IF(VALUES(event_ts) >= event_ts, VALUES(" + column + "), " + column + ")")
}

func (r *gormSubscriptionRepository) Upsert(sub *models.Subscription) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":              guarded("user_id"),
			"stripe_customer_id":   guarded("stripe_customer_id"),
			"user_type":            guarded("user_type"),
			"status":               guarded("status"),
			"price_id":             guarded("price_id"),
			"current_period_start": guarded("current_period_start"),
			"current_period_end":   guarded("current_period_end"),
			"trial_start":          guarded("trial_start"),
			"trial_end":            guarded("trial_end"),
			"cancel_at_period_end": guarded("cancel_at_period_end"),
			"canceled_at":          guarded("canceled_at"),
			"updated_at":           guarded("updated_at"),
			"event_ts":             guarded("event_ts"),
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID and the winning field values are populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

func (r *gormSubscriptionRepository) GetByStripeID(stripeSubID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_subscription_id = ?", stripeSubID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriptionRepository) LatestForUser(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormSubscriptionRepository) ListForUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

// MarkCanceled advances event_ts to the deletion event's time so a delayed
// pre-deletion update cannot pass the upsert guard afterwards and resurrect
// the canceled row.
func (r *gormSubscriptionRepository) MarkCanceled(stripeSubID string, at, eventTS time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ? AND event_ts <= ?", stripeSubID, eventTS).
		Updates(map[string]interface{}{
			"status":      models.SubscriptionStatusCanceled,
			"canceled_at": &at,
			"event_ts":    eventTS,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormSubscriptionRepository) UpdateStatus(stripeSubID, status string, eventTS time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ? AND event_ts <= ?", stripeSubID, eventTS).
		Updates(map[string]interface{}{
			"status":   status,
			"event_ts": eventTS,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
