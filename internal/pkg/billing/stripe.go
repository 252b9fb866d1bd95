package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/nutricoachhq/NutriCoach/internal/pkg/env"
)

// Provider is the slice of the payment provider the sweeper depends on.
// The concrete StripeClient implements it; tests use a fake.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*CustomerRef, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionPayload, error)
}

// CustomerRef identifies one provider customer.
type CustomerRef struct {
	ID    string
	Email string
}

// CheckoutParams describes a checkout session request. UserID, UserType and
// Email are stamped into the created subscription's metadata; the event
// reconciler cannot attribute webhooks without them.
type CheckoutParams struct {
	UserID     uint
	UserType   string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StripeClient wraps the Stripe SDK behind the handful of calls we make.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClientFromEnv configures the global Stripe key and returns a
// client. The webhook signing secret stays on the client, not the SDK.
func NewStripeClientFromEnv() *StripeClient {
	stripe.Key = strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	return &StripeClient{
		webhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
	}
}

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and returns the decoded event envelope. Any failure means the request is
// not a genuine Stripe delivery and must not be processed.
func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (*stripe.Event, error) {
	if len(payload) == 0 || strings.TrimSpace(signatureHeader) == "" || c.webhookSecret == "" {
		return nil, errors.New("missing webhook payload, signature or secret")
	}

	// The Stripe CLI may replay events with a different API version than
	// the SDK pins; the signature check itself is unaffected.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}

// FindCustomerByEmail returns the first Stripe customer matching the exact
// email, or nil when none exists. When duplicates exist the first match
// wins; that is a known limitation, not a guaranteed-correct match.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*CustomerRef, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errors.New("email is required")
	}

	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	if iter.Next() {
		cust := iter.Customer()
		return &CustomerRef{ID: cust.ID, Email: cust.Email}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe customer lookup failed: %w", err)
	}
	return nil, nil
}

// ListSubscriptions returns every subscription of the customer across all
// statuses; the sweep must see canceled and past-due ones too.
func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID string) ([]SubscriptionPayload, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []SubscriptionPayload
	iter := subscription.List(params)
	for iter.Next() {
		out = append(out, *subscriptionPayloadFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe subscription listing failed: %w", err)
	}
	return out, nil
}

// CreateCheckoutSession opens a Stripe Checkout session for a subscription
// purchase. The attribution metadata is set on the subscription itself (not
// only the session) so every later webhook carries it.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, string, error) {
	if p.UserID == 0 || strings.TrimSpace(p.PriceID) == "" {
		return "", "", errors.New("user id and price id are required")
	}

	metadata := map[string]string{
		"user_id":   strconv.FormatUint(uint64(p.UserID), 10),
		"user_type": p.UserType,
		"email":     p.Email,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(p.Email),
		SuccessURL:    stripe.String(p.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:     stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.URL, sess.ID, nil
}

// CreatePortalSession opens the Stripe billing portal for a customer.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("customer id is required")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return sess.URL, nil
}

// SetCancelAtPeriodEnd flips the provider-side cancel flag and returns the
// updated subscription state for local resync.
func (c *StripeClient) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*SubscriptionPayload, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, errors.New("subscription id is required")
	}

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription %s: %w", subscriptionID, err)
	}
	return subscriptionPayloadFromStripe(sub), nil
}
