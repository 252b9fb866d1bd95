package billing

import (
	"strings"

	"github.com/nutricoachhq/NutriCoach/app/models"
)

// NormalizeSubscriptionStatus maps a Stripe subscription status string to
// the closed internal set. Pure and total: every input maps to one of the
// five internal statuses, a failure here would block an entire sync batch.
func NormalizeSubscriptionStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "unpaid":
		return models.SubscriptionStatusPastDue
	case "canceled":
		return models.SubscriptionStatusCanceled
	case "incomplete", "incomplete_expired", "paused":
		return models.SubscriptionStatusInactive
	default:
		return models.SubscriptionStatusInactive
	}
}
