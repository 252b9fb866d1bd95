package repository

import (
	"time"

	"github.com/nutricoachhq/NutriCoach/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	ListWithEmail() ([]models.User, error)
	Update(user *models.User) error
	TouchAPIKeyUsage(id uint) error
}

// SubscriptionRepository is the entitlement store for subscription rows.
// Upsert is keyed by the Stripe subscription id and applies last-writer-wins
// by the event timestamp carried on the record.
type SubscriptionRepository interface {
	Upsert(sub *models.Subscription) error
	GetByStripeID(stripeSubID string) (*models.Subscription, error)
	LatestForUser(userID uint) (*models.Subscription, error)
	ListForUser(userID uint) ([]models.Subscription, error)
	// MarkCanceled stamps status=canceled, canceled_at and the deletion
	// event's time, subject to the same event-time guard as Upsert. Returns
	// false when no row matches the Stripe id or a newer event already won.
	MarkCanceled(stripeSubID string, at, eventTS time.Time) (bool, error)
	// UpdateStatus sets the normalized status for an existing row, subject
	// to the event-time guard. Returns false when no row matches the Stripe
	// id or a newer event already won.
	UpdateStatus(stripeSubID, status string, eventTS time.Time) (bool, error)
}

// TrialRepository is the entitlement store for trial rows. Creation is
// strictly create-if-absent keyed by user id so an existing trial window is
// never shortened or moved.
type TrialRepository interface {
	CreateIfAbsent(trial *models.Trial) (bool, error)
	GetByUserID(userID uint) (*models.Trial, error)
}

// PlanMappingRepository resolves Stripe price ids to user segments.
type PlanMappingRepository interface {
	FindActiveByPriceID(priceID string) (*models.PlanMapping, error)
}

// WebhookEventRepository persists webhook deliveries for auditing.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}
