package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nutricoachhq/NutriCoach/app/models"
)

func newTestSweeper(provider Provider, users *fakeUserRepo, plans *fakePlanRepo, subs *fakeSubscriptionRepo, trials *fakeTrialRepo) *Sweeper {
	recon := newTestReconciler(subs, trials, users)
	if plans == nil {
		plans = &fakePlanRepo{}
	}
	s := NewSweeper(provider, users, plans, recon)
	s.now = func() time.Time { return time.Date(2025, 6, 20, 8, 0, 0, 0, time.UTC) }
	return s
}

func TestRunFullSyncUpsertsProviderState(t *testing.T) {
	users := newFakeUserRepo(
		models.User{ID: 1, Email: "alice@example.com", UserType: models.UserTypePatient},
		models.User{ID: 2, Email: "bob@example.com", UserType: models.UserTypeProfessional},
	)
	provider := &fakeProvider{
		customers: map[string]string{
			"alice@example.com": "cus_alice",
			"bob@example.com":   "cus_bob",
		},
		subs: map[string][]SubscriptionPayload{
			"cus_alice": {{
				ID:         "sub_alice",
				CustomerID: "cus_alice",
				Status:     "active",
				PriceID:    "price_patient_monthly",
				Metadata:   map[string]string{"user_id": "1", "user_type": "patient"},
			}},
			"cus_bob": {{
				ID:         "sub_bob",
				CustomerID: "cus_bob",
				Status:     "past_due",
				PriceID:    "price_pro_monthly",
				Metadata:   map[string]string{"user_id": "2", "user_type": "professional"},
			}},
		},
	}
	subs := newFakeSubscriptionRepo()
	sweeper := newTestSweeper(provider, users, nil, subs, newFakeTrialRepo())

	summary, err := sweeper.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync returned error: %v", err)
	}
	if summary.RunID == "" {
		t.Fatalf("summary is missing a run id")
	}
	if summary.TotalUsers != 2 || summary.TotalSynced != 2 {
		t.Fatalf("summary: %d users, %d synced, want 2/2", summary.TotalUsers, summary.TotalSynced)
	}

	if sub, err := subs.GetByStripeID("sub_alice"); err != nil || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("alice's subscription not synced: %v", err)
	}
	if sub, err := subs.GetByStripeID("sub_bob"); err != nil || sub.Status != models.SubscriptionStatusPastDue {
		t.Fatalf("bob's subscription not synced: %v", err)
	}

	// Customer ids are backfilled onto the user rows.
	alice, _ := users.GetByID(1)
	if alice.StripeCustomerID != "cus_alice" {
		t.Fatalf("customer id not backfilled: %q", alice.StripeCustomerID)
	}
}

func TestRunFullSyncUserWithoutCustomer(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 1, Email: "nobody@example.com"})
	provider := &fakeProvider{customers: map[string]string{}}
	sweeper := newTestSweeper(provider, users, nil, newFakeSubscriptionRepo(), newFakeTrialRepo())

	summary, err := sweeper.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("RunFullSync returned error: %v", err)
	}
	if len(summary.Results) != 1 {
		t.Fatalf("expected one result, got %d", len(summary.Results))
	}
	if summary.Results[0].Message != "No Stripe customer" {
		t.Fatalf("message = %q", summary.Results[0].Message)
	}
	if summary.TotalSynced != 0 {
		t.Fatalf("nothing should be synced")
	}
}

func TestRunFullSyncIsolatesPerUserFailures(t *testing.T) {
	users := newFakeUserRepo(
		models.User{ID: 1, Email: "broken@example.com"},
		models.User{ID: 2, Email: "fine@example.com", UserType: models.UserTypeProfessional},
	)
	provider := &fakeProvider{
		customers: map[string]string{
			"broken@example.com": "cus_broken",
			"fine@example.com":   "cus_fine",
		},
		subs: map[string][]SubscriptionPayload{
			"cus_fine": {{
				ID:         "sub_fine",
				CustomerID: "cus_fine",
				Status:     "active",
				PriceID:    "price_pro_monthly",
				Metadata:   map[string]string{"user_id": "2", "user_type": "professional"},
			}},
		},
		listErr: map[string]error{"cus_broken": errors.New("stripe 500")},
	}
	subs := newFakeSubscriptionRepo()
	sweeper := newTestSweeper(provider, users, nil, subs, newFakeTrialRepo())

	summary, err := sweeper.RunFullSync(context.Background())
	if err != nil {
		t.Fatalf("one user's failure must not abort the sweep: %v", err)
	}
	if summary.TotalSynced != 1 {
		t.Fatalf("synced = %d, want 1", summary.TotalSynced)
	}
	if _, err := subs.GetByStripeID("sub_fine"); err != nil {
		t.Fatalf("healthy user was not synced: %v", err)
	}

	var failedResult bool
	for _, r := range summary.Results {
		if r.UserID == 1 && r.Message != "" {
			failedResult = true
		}
	}
	if !failedResult {
		t.Fatalf("failure was not recorded in the summary")
	}
}

func TestRunFullSyncHonorsCancellation(t *testing.T) {
	users := newFakeUserRepo(
		models.User{ID: 1, Email: "a@example.com"},
		models.User{ID: 2, Email: "b@example.com"},
	)
	provider := &fakeProvider{customers: map[string]string{}}
	sweeper := newTestSweeper(provider, users, nil, newFakeSubscriptionRepo(), newFakeTrialRepo())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := sweeper.RunFullSync(ctx)
	if err != nil {
		t.Fatalf("cancelled sweep still returns a summary: %v", err)
	}
	if !summary.Aborted {
		t.Fatalf("summary must be flagged aborted")
	}
	if len(summary.Results) != 0 {
		t.Fatalf("no user should be processed after cancellation")
	}
}

func TestResolveUserTypeFallbackChain(t *testing.T) {
	plans := &fakePlanRepo{byPrice: map[string]string{"price_pro_monthly": models.UserTypeProfessional}}
	sweeper := newTestSweeper(&fakeProvider{}, newFakeUserRepo(), plans, newFakeSubscriptionRepo(), newFakeTrialRepo())

	tests := []struct {
		name    string
		payload SubscriptionPayload
		want    string
	}{
		{
			name:    "metadata wins",
			payload: SubscriptionPayload{Metadata: map[string]string{"user_type": "professional"}, PriceID: "price_unknown"},
			want:    models.UserTypeProfessional,
		},
		{
			name:    "plan mapping when metadata absent",
			payload: SubscriptionPayload{PriceID: "price_pro_monthly"},
			want:    models.UserTypeProfessional,
		},
		{
			name:    "patient default",
			payload: SubscriptionPayload{PriceID: "price_unmapped"},
			want:    models.UserTypePatient,
		},
		{
			name:    "garbage metadata normalizes to patient",
			payload: SubscriptionPayload{Metadata: map[string]string{"user_type": "superuser"}},
			want:    models.UserTypePatient,
		},
	}

	for _, tt := range tests {
		if got := sweeper.resolveUserType(&tt.payload); got != tt.want {
			t.Fatalf("%s: resolveUserType = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSweepOutranksOlderWebhook(t *testing.T) {
	users := newFakeUserRepo(models.User{ID: 1, Email: "alice@example.com", UserType: models.UserTypePatient})
	provider := &fakeProvider{
		customers: map[string]string{"alice@example.com": "cus_alice"},
		subs: map[string][]SubscriptionPayload{
			"cus_alice": {{
				ID:         "sub_alice",
				CustomerID: "cus_alice",
				Status:     "canceled",
				PriceID:    "price_patient_monthly",
				Metadata:   map[string]string{"user_id": "1", "user_type": "patient"},
			}},
		},
	}
	subs := newFakeSubscriptionRepo()
	trials := newFakeTrialRepo()
	sweeper := newTestSweeper(provider, users, nil, subs, trials)

	if _, err := sweeper.RunFullSync(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	// A delayed webhook created before the sweep must be rejected by the
	// event-time guard.
	stale := &SubscriptionPayload{
		ID:         "sub_alice",
		CustomerID: "cus_alice",
		Status:     "active",
		PriceID:    "price_patient_monthly",
		Metadata:   map[string]string{"user_id": "1", "user_type": "patient"},
	}
	staleTS := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	if err := sweeper.recon.ApplySubscriptionState(1, models.UserTypePatient, stale, staleTS); err != nil {
		t.Fatalf("stale apply errored: %v", err)
	}

	sub, _ := subs.GetByStripeID("sub_alice")
	if sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("stale webhook overwrote sweep state: %s", sub.Status)
	}
}
