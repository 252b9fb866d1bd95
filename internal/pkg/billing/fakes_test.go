package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nutricoachhq/NutriCoach/app/models"
)

// fakeSubscriptionRepo keeps rows in memory and mirrors the store's
// event-time guard: an upsert older than the stored row is ignored.
type fakeSubscriptionRepo struct {
	rows    map[string]*models.Subscription
	upserts int
	failAll bool
	getErr  error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{rows: map[string]*models.Subscription{}}
}

func (f *fakeSubscriptionRepo) Upsert(sub *models.Subscription) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	f.upserts++
	existing, ok := f.rows[sub.StripeSubscriptionID]
	if ok && sub.EventTS.Before(existing.EventTS) {
		*sub = *existing
		return nil
	}
	cp := *sub
	f.rows[sub.StripeSubscriptionID] = &cp
	return nil
}

func (f *fakeSubscriptionRepo) GetByStripeID(stripeSubID string) (*models.Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if sub, ok := f.rows[stripeSubID]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionRepo) LatestForUser(userID uint) (*models.Subscription, error) {
	var latest *models.Subscription
	for _, sub := range f.rows {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.UpdatedAt.After(latest.UpdatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSubscriptionRepo) ListForUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range f.rows {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) MarkCanceled(stripeSubID string, at, eventTS time.Time) (bool, error) {
	sub, ok := f.rows[stripeSubID]
	if !ok || eventTS.Before(sub.EventTS) {
		return false, nil
	}
	sub.Status = models.SubscriptionStatusCanceled
	sub.CanceledAt = &at
	sub.EventTS = eventTS
	return true, nil
}

func (f *fakeSubscriptionRepo) UpdateStatus(stripeSubID, status string, eventTS time.Time) (bool, error) {
	sub, ok := f.rows[stripeSubID]
	if !ok || eventTS.Before(sub.EventTS) {
		return false, nil
	}
	sub.Status = status
	sub.EventTS = eventTS
	return true, nil
}

// fakeTrialRepo is create-if-absent keyed by user id, like the real table.
type fakeTrialRepo struct {
	rows map[uint]*models.Trial
}

func newFakeTrialRepo() *fakeTrialRepo {
	return &fakeTrialRepo{rows: map[uint]*models.Trial{}}
}

func (f *fakeTrialRepo) CreateIfAbsent(trial *models.Trial) (bool, error) {
	if existing, ok := f.rows[trial.UserID]; ok {
		*trial = *existing
		return false, nil
	}
	cp := *trial
	f.rows[trial.UserID] = &cp
	return true, nil
}

func (f *fakeTrialRepo) GetByUserID(userID uint) (*models.Trial, error) {
	if trial, ok := f.rows[userID]; ok {
		cp := *trial
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeUserRepo struct {
	rows    map[uint]*models.User
	updates int
}

func newFakeUserRepo(users ...models.User) *fakeUserRepo {
	f := &fakeUserRepo{rows: map[uint]*models.User{}}
	for i := range users {
		cp := users[i]
		f.rows[cp.ID] = &cp
	}
	return f
}

func (f *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	if user, ok := f.rows[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	for _, user := range f.rows {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByAPIKeyHash(hash string) (*models.User, error) {
	for _, user := range f.rows {
		if user.APIKeyHash == hash {
			cp := *user
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) ListWithEmail() ([]models.User, error) {
	var out []models.User
	for _, user := range f.rows {
		if user.Email != "" {
			out = append(out, *user)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) Update(user *models.User) error {
	f.updates++
	cp := *user
	f.rows[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) TouchAPIKeyUsage(id uint) error { return nil }

type fakePlanRepo struct {
	byPrice map[string]string
}

func (f *fakePlanRepo) FindActiveByPriceID(priceID string) (*models.PlanMapping, error) {
	if userType, ok := f.byPrice[priceID]; ok {
		return &models.PlanMapping{PriceID: priceID, UserType: userType, IsActive: true}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// fakeProvider serves canned sweep data per customer email.
type fakeProvider struct {
	customers map[string]string                // email -> customer id
	subs      map[string][]SubscriptionPayload // customer id -> subscriptions
	listErr   map[string]error                 // customer id -> forced error
}

func (f *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*CustomerRef, error) {
	if id, ok := f.customers[email]; ok {
		return &CustomerRef{ID: id, Email: email}, nil
	}
	return nil, nil
}

func (f *fakeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionPayload, error) {
	if err, ok := f.listErr[customerID]; ok {
		return nil, err
	}
	return f.subs[customerID], nil
}
