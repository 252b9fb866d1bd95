package models

import "time"

// PlanMapping maps a Stripe price id to the user segment that price sells
// to. The full-sync sweeper consults it when subscription metadata is
// unavailable (out-of-band subscriptions never went through our checkout).
type PlanMapping struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PriceID   string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_plan_mappings_price_id" json:"price_id"`
	UserType  string    `gorm:"type:varchar(20);not null;default:'patient'" json:"user_type"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
