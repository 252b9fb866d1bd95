package billing

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
)

// EventKind is the closed set of provider event kinds the reconciler
// understands. Everything else is accepted and ignored at the ingress.
type EventKind string

const (
	EventSubscriptionCreated EventKind = "customer.subscription.created"
	EventSubscriptionUpdated EventKind = "customer.subscription.updated"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
	EventTrialWillEnd        EventKind = "customer.subscription.trial_will_end"
	EventInvoicePaid         EventKind = "invoice.payment_succeeded"
	EventInvoiceFailed       EventKind = "invoice.payment_failed"
)

// SubscriptionPayload is the provider-agnostic shape of one subscription
// object as carried by an event or returned by a sweep listing. Timestamps
// are provider epoch seconds, zero when absent.
type SubscriptionPayload struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	Metadata           map[string]string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	TrialStart         int64
	TrialEnd           int64
	CancelAtPeriodEnd  bool
	CanceledAt         int64
}

// InvoicePayload carries the subscription reference of an invoice event.
// SubscriptionID is empty for one-off invoices.
type InvoicePayload struct {
	ID             string
	SubscriptionID string
}

// Event is the tagged variant handed to the reconciler. Exactly one of the
// payload pointers matching Kind is non-nil.
type Event struct {
	Kind         EventKind
	StripeID     string
	CreatedAt    int64
	Subscription *SubscriptionPayload
	Invoice      *InvoicePayload
}

// KnownEventKind reports whether the reconciler handles this event type.
func KnownEventKind(eventType string) bool {
	switch EventKind(eventType) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventTrialWillEnd, EventInvoicePaid, EventInvoiceFailed:
		return true
	default:
		return false
	}
}

// DecodeEvent turns a verified Stripe event envelope into a typed variant.
// Decoding failures are the attribution-error class: the payload cannot be
// applied, resending the same bytes will not fix it.
func DecodeEvent(event *stripe.Event) (*Event, error) {
	kind := EventKind(event.Type)
	out := &Event{
		Kind:      kind,
		StripeID:  event.ID,
		CreatedAt: event.Created,
	}

	switch kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventTrialWillEnd:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, event.Type, err)
		}
		out.Subscription = subscriptionPayloadFromStripe(&sub)
	case EventInvoicePaid, EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, event.Type, err)
		}
		payload := &InvoicePayload{ID: inv.ID}
		if inv.Subscription != nil {
			payload.SubscriptionID = inv.Subscription.ID
		}
		out.Invoice = payload
	default:
		return nil, fmt.Errorf("%w: unhandled event type %s", ErrBadPayload, event.Type)
	}

	return out, nil
}

func subscriptionPayloadFromStripe(sub *stripe.Subscription) *SubscriptionPayload {
	payload := &SubscriptionPayload{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		Metadata:           sub.Metadata,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		TrialStart:         sub.TrialStart,
		TrialEnd:           sub.TrialEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         sub.CanceledAt,
	}
	if sub.Customer != nil {
		payload.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		payload.PriceID = sub.Items.Data[0].Price.ID
	}
	return payload
}
