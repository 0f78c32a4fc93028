package types

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
)

// EventType is the provider-declared type of a webhook event.
type EventType string

const (
	EventTypeCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventTypeInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
)
