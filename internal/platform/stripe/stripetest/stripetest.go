// Package stripetest provides signed webhook fixtures and an in-memory
// Stripe provider for tests.
package stripetest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// SignedHeader builds a Stripe-Signature header value for payload.
func SignedHeader(payload []byte, secret string, at time.Time) string {
	sig := webhook.ComputeSignature(at, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(sig))
}

// EventJSON renders a minimal Stripe event envelope around object.
func EventJSON(id, eventType string, object any) []byte {
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"livemode":    false,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return raw
}

// Subscription builds a subscription as the API returns it, with one item
// carrying both the legacy plan and the price.
func Subscription(id, status, planID, interval string, start, end time.Time) *stripe.Subscription {
	return &stripe.Subscription{
		ID:                 id,
		Status:             stripe.SubscriptionStatus(status),
		CurrentPeriodStart: start.Unix(),
		CurrentPeriodEnd:   end.Unix(),
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				Plan: &stripe.Plan{ID: planID, Interval: stripe.PlanInterval(interval)},
				Price: &stripe.Price{
					ID:        planID,
					Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringInterval(interval)},
				},
			}},
		},
	}
}

// Provider is an in-memory stand-in for the Stripe API.
type Provider struct {
	mu            sync.Mutex
	subscriptions map[string]*stripe.Subscription
	invoices      map[string]*stripe.Invoice
	calls         int

	// Err, when set, is returned from every call.
	Err error
}

func NewProvider() *Provider {
	return &Provider{
		subscriptions: map[string]*stripe.Subscription{},
		invoices:      map[string]*stripe.Invoice{},
	}
}

func (p *Provider) PutSubscription(s *stripe.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions[s.ID] = s
}

func (p *Provider) PutInvoice(in *stripe.Invoice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invoices[in.ID] = in
}

// Calls returns how many API calls were made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *Provider) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return nil, p.Err
	}
	s, ok := p.subscriptions[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: "No such subscription: " + id}
	}
	return s, nil
}

func (p *Provider) GetInvoice(_ context.Context, id string) (*stripe.Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return nil, p.Err
	}
	in, ok := p.invoices[id]
	if !ok {
		return nil, &stripe.Error{HTTPStatusCode: 404, Code: stripe.ErrorCodeResourceMissing, Msg: "No such invoice: " + id}
	}
	return in, nil
}
