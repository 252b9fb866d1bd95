package models

import "time"

// Trial is the provider-independent trial window for the patient segment.
// One row per user, ever: the upsert is create-if-absent keyed by user_id,
// so a later event can neither shorten nor move an existing window.
// TrialUsed is a one-way flag and must never be reset to false.
type Trial struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               uint      `gorm:"not null;uniqueIndex:ux_trials_user_id" json:"user_id"`
	TrialStart           time.Time `gorm:"type:timestamp;not null" json:"trial_start"`
	TrialEnd             time.Time `gorm:"type:timestamp;not null" json:"trial_end"`
	TrialUsed            bool      `gorm:"not null;default:false" json:"trial_used"`
	StripeSubscriptionID string    `gorm:"type:varchar(191);not null;default:''" json:"stripe_subscription_id"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
