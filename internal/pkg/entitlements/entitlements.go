package entitlements

import (
	"errors"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/nutricoachhq/NutriCoach/app/repository"
)

// Service answers "is this user entitled right now" from the local store
// only. It never calls the payment provider: the gating path has to stay
// fast and independent of provider uptime (repair happens via the sweeper).
// All decisions use the server clock, never client-submitted time.
type Service struct {
	subs   repository.SubscriptionRepository
	trials repository.TrialRepository
	now    func() time.Time
}

// NewService creates an entitlement query service.
func NewService(subs repository.SubscriptionRepository, trials repository.TrialRepository) *Service {
	return &Service{
		subs:   subs,
		trials: trials,
		now:    time.Now,
	}
}

// HasActiveSubscription reports whether the user's latest subscription
// record is entitling (active, or trialing since Stripe models the trial
// inside the subscription).
func (s *Service) HasActiveSubscription(userID uint) (bool, error) {
	sub, err := s.subs.LatestForUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.IsEntitling(), nil
}

// HasActiveTrial reports whether the user has a consumed trial window that
// has not yet elapsed.
func (s *Service) HasActiveTrial(userID uint) (bool, error) {
	trial, err := s.trials.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return trial.TrialUsed && s.now().Before(trial.TrialEnd), nil
}

// TrialDaysRemaining returns the whole days left on the user's trial,
// rounded up and floored at zero.
func (s *Service) TrialDaysRemaining(userID uint) (int, error) {
	trial, err := s.trials.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	remaining := trial.TrialEnd.Sub(s.now())
	if remaining <= 0 {
		return 0, nil
	}
	return int(math.Ceil(remaining.Hours() / 24)), nil
}

// Snapshot is the gating layer's view of one user's entitlement state.
type Snapshot struct {
	HasActiveSubscription bool       `json:"has_active_subscription"`
	SubscriptionStatus    string     `json:"subscription_status,omitempty"`
	CancelAtPeriodEnd     bool       `json:"cancel_at_period_end,omitempty"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	HasActiveTrial        bool       `json:"has_active_trial"`
	TrialEnd              *time.Time `json:"trial_end,omitempty"`
	TrialDaysRemaining    int        `json:"trial_days_remaining"`
	Entitled              bool       `json:"entitled"`
}

// SnapshotFor assembles the full entitlement state for one user.
func (s *Service) SnapshotFor(userID uint) (*Snapshot, error) {
	snap := &Snapshot{}

	sub, err := s.subs.LatestForUser(userID)
	switch {
	case err == nil:
		snap.SubscriptionStatus = sub.Status
		snap.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		snap.CurrentPeriodEnd = sub.CurrentPeriodEnd
		snap.HasActiveSubscription = sub.IsEntitling()
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no subscription yet
	default:
		return nil, err
	}

	trial, err := s.trials.GetByUserID(userID)
	switch {
	case err == nil:
		snap.TrialEnd = &trial.TrialEnd
		snap.HasActiveTrial = trial.TrialUsed && s.now().Before(trial.TrialEnd)
		if remaining := trial.TrialEnd.Sub(s.now()); remaining > 0 {
			snap.TrialDaysRemaining = int(math.Ceil(remaining.Hours() / 24))
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no trial recorded
	default:
		return nil, err
	}

	snap.Entitled = snap.HasActiveSubscription || snap.HasActiveTrial
	return snap, nil
}
