package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nutricoachhq/NutriCoach/app/models"
	"github.com/nutricoachhq/NutriCoach/app/repository"
)

// UserSyncResult is the per-user outcome of a full sync pass.
type UserSyncResult struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	Synced  int    `json:"synced"`
	Message string `json:"message,omitempty"`
}

// SyncSummary aggregates one full reconciliation pass.
type SyncSummary struct {
	RunID       string           `json:"run_id"`
	TotalUsers  int              `json:"total_users"`
	TotalSynced int              `json:"total_synced"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Aborted     bool             `json:"aborted,omitempty"`
	Results     []UserSyncResult `json:"results"`
}

// Sweeper reconciles the entitlement store against provider truth for every
// known user, independent of event delivery. It is the only path authorized
// to backfill users whose subscriptions never produced a webhook and to
// repair drift after a missed delivery.
type Sweeper struct {
	provider Provider
	users    repository.UserRepository
	plans    repository.PlanMappingRepository
	recon    *Reconciler
	now      func() time.Time
}

// NewSweeper creates a sweeper with explicitly injected dependencies. It
// shares the reconciler's upsert path so the two never diverge.
func NewSweeper(provider Provider, users repository.UserRepository, plans repository.PlanMappingRepository, recon *Reconciler) *Sweeper {
	return &Sweeper{
		provider: provider,
		users:    users,
		plans:    plans,
		recon:    recon,
		now:      time.Now,
	}
}

// RunFullSync iterates all users with a non-empty email and upserts every
// subscription found at the provider. One user's failure is recorded in that
// user's result and does not abort the rest; cancellation is honored between
// users, each user's upserts being an independently committed unit of work.
func (s *Sweeper) RunFullSync(ctx context.Context) (*SyncSummary, error) {
	summary := &SyncSummary{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	log.Infof("[FullSync %s] starting", summary.RunID)

	users, err := s.users.ListWithEmail()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	summary.TotalUsers = len(users)

	for i := range users {
		if ctx.Err() != nil {
			summary.Aborted = true
			log.Warnf("[FullSync %s] aborted after %d/%d users: %v", summary.RunID, i, len(users), ctx.Err())
			break
		}
		result := s.syncUser(ctx, &users[i])
		summary.TotalSynced += result.Synced
		summary.Results = append(summary.Results, result)
	}

	summary.FinishedAt = s.now()
	log.Infof("[FullSync %s] done: %d users, %d subscriptions in %s",
		summary.RunID, summary.TotalUsers, summary.TotalSynced, summary.FinishedAt.Sub(summary.StartedAt))
	return summary, nil
}

func (s *Sweeper) syncUser(ctx context.Context, user *models.User) UserSyncResult {
	result := UserSyncResult{UserID: user.ID, Email: user.Email}

	cust, err := s.provider.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		result.Message = fmt.Sprintf("customer lookup failed: %v", err)
		log.Errorf("[FullSync] user %d: %s", user.ID, result.Message)
		return result
	}
	if cust == nil {
		result.Message = "No Stripe customer"
		return result
	}

	subs, err := s.provider.ListSubscriptions(ctx, cust.ID)
	if err != nil {
		result.Message = fmt.Sprintf("subscription listing failed: %v", err)
		log.Errorf("[FullSync] user %d: %s", user.ID, result.Message)
		return result
	}

	// The fetch is the event: provider truth as of now outranks any older
	// in-flight webhook at the store's event-time guard.
	fetchedAt := s.now()
	for i := range subs {
		payload := &subs[i]
		userType := s.resolveUserType(payload)
		if err := s.recon.ApplySubscriptionState(user.ID, userType, payload, fetchedAt); err != nil {
			result.Message = fmt.Sprintf("upsert %s failed: %v", payload.ID, err)
			log.Errorf("[FullSync] user %d: %s", user.ID, result.Message)
			continue
		}
		result.Synced++
	}

	// Backfill the customer link, best-effort.
	if user.StripeCustomerID != cust.ID {
		user.StripeCustomerID = cust.ID
		if err := s.users.Update(user); err != nil {
			log.Warnf("[FullSync] user %d: could not store customer id: %v", user.ID, err)
		}
	}

	return result
}

// resolveUserType prefers subscription metadata; for out-of-band
// subscriptions without it the plan mapping table decides, defaulting to
// the non-privileged patient segment.
func (s *Sweeper) resolveUserType(payload *SubscriptionPayload) string {
	if ut := payload.Metadata["user_type"]; ut != "" {
		return models.NormalizeUserType(ut)
	}
	if payload.PriceID != "" {
		mapping, err := s.plans.FindActiveByPriceID(payload.PriceID)
		if err == nil {
			return models.NormalizeUserType(mapping.UserType)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[FullSync] plan lookup for price %s failed: %v", payload.PriceID, err)
		}
	}
	return models.UserTypePatient
}
