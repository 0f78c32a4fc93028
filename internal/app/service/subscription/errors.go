package subscription

import "errors"

// ErrUserNotFound means no user owns the Stripe customer on an activation.
// It is not retried here; the provider redelivers once the user exists.
var ErrUserNotFound = errors.New("user not found for stripe customer")

// ErrIncompleteSubscription is returned when the provider's subscription
// has no item to take the plan from.
var ErrIncompleteSubscription = errors.New("stripe subscription has no plan item")

// errSubscriptionNotFound is the transient race of a renewal arriving
// before its activation. Renew waits on it and never surfaces it.
var errSubscriptionNotFound = errors.New("subscription not found")
