package models

import "time"

// Normalized subscription statuses. NormalizeSubscriptionStatus maps every
// provider status string into this closed set.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusInactive = "inactive"
)

// Subscription mirrors one Stripe subscription. A user may accumulate
// multiple rows over time (plan changes create new Stripe ids); the current
// one is the row with the latest updated_at. Rows are never hard-deleted,
// cancellation is a status transition plus canceled_at.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"not null;index" json:"user_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_sub_id" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;index" json:"stripe_customer_id"`
	UserType             string     `gorm:"type:varchar(20);not null;default:'patient'" json:"user_type"`
	Status               string     `gorm:"type:varchar(32);not null;default:'inactive';index" json:"status"`
	PriceID              string     `gorm:"type:varchar(191);not null" json:"price_id"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialStart           *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	// EventTS carries the originating provider event's own creation time.
	// Upserts whose EventTS is older than the stored value are ignored so a
	// delayed duplicate can never overwrite newer state.
	EventTS   time.Time `gorm:"type:timestamp;not null;index" json:"event_ts"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the status grants product access. Trialing
// counts because Stripe models trial-within-subscription.
func (s *Subscription) IsEntitling() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
