package subscription

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"

	"github.com/notemark/notemark/pkg/types"
)

// remoteState is the provider-authoritative part of a subscription row.
type remoteState struct {
	Status             types.SubscriptionStatus
	PlanID             string
	BillingInterval    string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

func firstItem(sub *stripe.Subscription) (*stripe.SubscriptionItem, error) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0] == nil {
		return nil, ErrIncompleteSubscription
	}
	return sub.Items.Data[0], nil
}

func periodOf(sub *stripe.Subscription, planID, interval string) *remoteState {
	return &remoteState{
		Status:             types.SubscriptionStatus(sub.Status),
		PlanID:             planID,
		BillingInterval:    interval,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
}

// activationState reads the plan the way checkout creates it: from the
// item's plan.
func activationState(sub *stripe.Subscription) (*remoteState, error) {
	item, err := firstItem(sub)
	if err != nil {
		return nil, err
	}
	if item.Plan == nil || item.Plan.ID == "" {
		return nil, fmt.Errorf("%w: subscription %s item has no plan", ErrIncompleteSubscription, sub.ID)
	}
	return periodOf(sub, item.Plan.ID, string(item.Plan.Interval)), nil
}

// renewalState reads the plan from the item's price, which reflects plan
// switches made after checkout.
func renewalState(sub *stripe.Subscription) (*remoteState, error) {
	item, err := firstItem(sub)
	if err != nil {
		return nil, err
	}
	var planID, interval string
	if item.Price != nil {
		planID = item.Price.ID
		if item.Price.Recurring != nil {
			interval = string(item.Price.Recurring.Interval)
		}
	}
	if item.Plan != nil {
		if planID == "" {
			planID = item.Plan.ID
		}
		if interval == "" {
			interval = string(item.Plan.Interval)
		}
	}
	if planID == "" {
		return nil, fmt.Errorf("%w: subscription %s item has no price", ErrIncompleteSubscription, sub.ID)
	}
	return periodOf(sub, planID, interval), nil
}
