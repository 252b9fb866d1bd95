package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutricoachhq/NutriCoach/app/models"
	"github.com/nutricoachhq/NutriCoach/app/repository"
)

// Reconciler applies provider events to the entitlement store. Every
// handler re-derives absolute state from the event payload, so a duplicate
// delivery re-applies the same values; the store's event-time guard keeps an
// out-of-order duplicate from overwriting newer data with older data.
type Reconciler struct {
	subs   repository.SubscriptionRepository
	trials repository.TrialRepository
	users  repository.UserRepository
	now    func() time.Time
}

// NewReconciler creates a reconciler with explicitly injected repositories.
func NewReconciler(subs repository.SubscriptionRepository, trials repository.TrialRepository, users repository.UserRepository) *Reconciler {
	return &Reconciler{
		subs:   subs,
		trials: trials,
		users:  users,
		now:    time.Now,
	}
}

// ApplyEvent processes one decoded provider event. Attribution and payload
// errors are hard (see errors.go); missing local references degrade to a
// logged no-op so one stale event cannot block the webhook stream.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev *Event) error {
	switch ev.Kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return r.applySubscription(ev)
	case EventSubscriptionDeleted:
		return r.applyDeleted(ev)
	case EventTrialWillEnd:
		return r.applyTrialWillEnd(ev)
	case EventInvoicePaid:
		return r.applyInvoice(ev, models.SubscriptionStatusActive)
	case EventInvoiceFailed:
		return r.applyInvoice(ev, models.SubscriptionStatusPastDue)
	default:
		log.Infof("[Billing] ignoring event %s of unhandled kind %s", ev.StripeID, ev.Kind)
		return nil
	}
}

func (r *Reconciler) applySubscription(ev *Event) error {
	payload := ev.Subscription
	isCreate := ev.Kind == EventSubscriptionCreated

	userID, userType, err := attributionFromMetadata(payload.Metadata)
	if err != nil {
		if isCreate {
			return fmt.Errorf("%w: subscription %s: %v", ErrMissingAttribution, payload.ID, err)
		}
		// Updates may arrive without metadata (e.g. provider-side edits);
		// fall back to the attribution we stored on first observation.
		stored, lookupErr := r.subs.GetByStripeID(payload.ID)
		if lookupErr != nil {
			if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: subscription %s has no metadata and no local record", ErrMissingAttribution, payload.ID)
			}
			// A store failure is retryable, not an attribution bug.
			return fmt.Errorf("lookup subscription %s: %w", payload.ID, lookupErr)
		}
		userID, userType = stored.UserID, stored.UserType
	}

	if payload.PriceID == "" && isCreate {
		return fmt.Errorf("%w: subscription %s", ErrMissingPrice, payload.ID)
	}

	return r.ApplySubscriptionState(userID, userType, payload, r.eventTime(ev))
}

// eventTime returns the event's own creation time, falling back to the
// server clock when the provider omitted it.
func (r *Reconciler) eventTime(ev *Event) time.Time {
	if ev.CreatedAt > 0 {
		return time.Unix(ev.CreatedAt, 0)
	}
	return r.now()
}

// ApplySubscriptionState upserts one subscription's absolute state plus the
// create-if-absent trial record. The full-sync sweeper shares this path so
// sweeps and webhooks can never disagree about how a payload lands.
func (r *Reconciler) ApplySubscriptionState(userID uint, userType string, payload *SubscriptionPayload, eventTS time.Time) error {
	sub := &models.Subscription{
		UserID:               userID,
		StripeSubscriptionID: payload.ID,
		StripeCustomerID:     payload.CustomerID,
		UserType:             models.NormalizeUserType(userType),
		Status:               NormalizeSubscriptionStatus(payload.Status),
		PriceID:              payload.PriceID,
		CurrentPeriodStart:   unixTimePtr(payload.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTimePtr(payload.CurrentPeriodEnd),
		TrialStart:           unixTimePtr(payload.TrialStart),
		TrialEnd:             unixTimePtr(payload.TrialEnd),
		CancelAtPeriodEnd:    payload.CancelAtPeriodEnd,
		CanceledAt:           unixTimePtr(payload.CanceledAt),
		EventTS:              eventTS,
		UpdatedAt:            r.now(),
	}
	if err := r.subs.Upsert(sub); err != nil {
		return fmt.Errorf("upsert subscription %s: %w", payload.ID, err)
	}

	// Patients get a provider-independent trial window, recorded once per
	// user. Create-if-absent: a later event must not shorten or move it.
	if sub.UserType == models.UserTypePatient && payload.TrialEnd > 0 {
		trialStart := unixTimePtr(payload.TrialStart)
		if trialStart == nil {
			trialStart = &eventTS
		}
		trial := &models.Trial{
			UserID:               userID,
			TrialStart:           *trialStart,
			TrialEnd:             *unixTimePtr(payload.TrialEnd),
			TrialUsed:            true,
			StripeSubscriptionID: payload.ID,
		}
		created, err := r.trials.CreateIfAbsent(trial)
		if err != nil {
			return fmt.Errorf("record trial for user %d: %w", userID, err)
		}
		if created {
			log.Infof("[Billing] trial recorded for user %d until %s (subscription %s)", userID, trial.TrialEnd.Format(time.RFC3339), payload.ID)
		}
	}

	return nil
}

func (r *Reconciler) applyDeleted(ev *Event) error {
	payload := ev.Subscription
	found, err := r.subs.MarkCanceled(payload.ID, r.now(), r.eventTime(ev))
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", payload.ID, err)
	}
	if !found {
		// Deletion of something never observed, or already outranked by a
		// newer event, is not an error.
		log.Infof("[Billing] delete event for subscription %s changed nothing, ignoring", payload.ID)
	}
	return nil
}

// applyTrialWillEnd is the read-only notification path. Trial-ending
// messaging itself runs in a separate asynchronous consumer; here we only
// resolve the owning user and log.
func (r *Reconciler) applyTrialWillEnd(ev *Event) error {
	payload := ev.Subscription
	stored, err := r.subs.GetByStripeID(payload.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] trial_will_end for unknown subscription %s, ignoring", payload.ID)
			return nil
		}
		return fmt.Errorf("lookup subscription %s: %w", payload.ID, err)
	}

	user, err := r.users.GetByID(stored.UserID)
	if err != nil {
		log.Warnf("[Billing] trial_will_end for subscription %s: user %d not found", payload.ID, stored.UserID)
		return nil
	}
	log.Infof("[Billing] trial ending soon for user %d (%s, %s)", user.ID, user.Email, user.UserType)
	return nil
}

func (r *Reconciler) applyInvoice(ev *Event, status string) error {
	payload := ev.Invoice
	if payload.SubscriptionID == "" {
		log.Infof("[Billing] invoice %s has no subscription reference, ignoring", payload.ID)
		return nil
	}

	found, err := r.subs.UpdateStatus(payload.SubscriptionID, status, r.eventTime(ev))
	if err != nil {
		return fmt.Errorf("set subscription %s to %s: %w", payload.SubscriptionID, status, err)
	}
	if !found {
		log.Warnf("[Billing] invoice %s references unknown subscription %s, ignoring", payload.ID, payload.SubscriptionID)
	}
	return nil
}

func attributionFromMetadata(metadata map[string]string) (uint, string, error) {
	rawID := metadata["user_id"]
	if rawID == "" {
		return 0, "", errors.New("user_id missing")
	}
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("user_id %q is not a valid id", rawID)
	}
	userType := metadata["user_type"]
	if userType == "" {
		return 0, "", errors.New("user_type missing")
	}
	return uint(id), userType, nil
}

func unixTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
