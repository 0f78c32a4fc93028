package notification_handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"

	"github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_notification"
)

// ErrMalformedPayload means a recognized event type carried a data object
// that could not be decoded into what its handler needs.
var ErrMalformedPayload = errors.New("malformed event payload")

// parseCheckoutSession extracts the activation inputs from a
// checkout.session.completed event. A session without a subscription
// (one-off payment) yields an empty ExternalSubscriptionID.
func parseCheckoutSession(ev *stripe_notification.AuthenticatedEvent) (*subscription.ActivateRequest, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(ev.Payload, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %w", ErrMalformedPayload, err)
	}
	req := &subscription.ActivateRequest{EventID: ev.ID}
	if session.Subscription != nil {
		req.ExternalSubscriptionID = session.Subscription.ID
	}
	if session.Customer != nil {
		req.CustomerID = session.Customer.ID
	}
	if req.ExternalSubscriptionID != "" && req.CustomerID == "" {
		return nil, fmt.Errorf("%w: checkout session %s has a subscription but no customer", ErrMalformedPayload, session.ID)
	}
	return req, nil
}

// parseInvoice extracts the renewal inputs from an invoice.payment_succeeded
// event.
func parseInvoice(ev *stripe_notification.AuthenticatedEvent) (*subscription.RenewRequest, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(ev.Payload, &invoice); err != nil {
		return nil, fmt.Errorf("%w: invoice: %w", ErrMalformedPayload, err)
	}
	if invoice.ID == "" {
		return nil, fmt.Errorf("%w: invoice has no id", ErrMalformedPayload)
	}
	req := &subscription.RenewRequest{EventID: ev.ID, InvoiceID: invoice.ID}
	if invoice.Subscription != nil {
		req.ExternalSubscriptionID = invoice.Subscription.ID
	}
	return req, nil
}
