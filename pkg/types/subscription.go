package types

// SubscriptionStatus mirrors the provider's subscription status. Values are
// stored as received; the constants below are the ones the service reasons about.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
)

// Entitled reports whether the status grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonActivate SubscriptionChangeReason = "activate"
	SubscriptionChangeReasonRenew    SubscriptionChangeReason = "renew"
)
