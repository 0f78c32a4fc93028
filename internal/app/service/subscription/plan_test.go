package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/notemark/notemark/internal/platform/stripe/stripetest"
)

func TestActivationState_ReadsPlan(t *testing.T) {
	start := time.Unix(1700000000, 0).UTC()
	sub := stripetest.Subscription("sub_1", "trialing", "plan_x", "year", start, start.Add(time.Hour))
	sub.Items.Data[0].Price.ID = "price_other"

	st, err := activationState(sub)
	require.NoError(t, err)
	require.Equal(t, "plan_x", st.PlanID)
	require.Equal(t, "year", st.BillingInterval)
	require.Equal(t, "trialing", string(st.Status))
	require.True(t, start.Equal(st.CurrentPeriodStart))
}

func TestRenewalState_PrefersPrice(t *testing.T) {
	sub := stripetest.Subscription("sub_1", "active", "plan_x", "month", time.Unix(0, 0), time.Unix(100, 0))
	sub.Items.Data[0].Price.ID = "price_new"

	st, err := renewalState(sub)
	require.NoError(t, err)
	require.Equal(t, "price_new", st.PlanID)
	require.Equal(t, "month", st.BillingInterval)
}

func TestRenewalState_FallsBackToPlan(t *testing.T) {
	sub := &stripe.Subscription{
		ID:    "sub_1",
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{Plan: &stripe.Plan{ID: "plan_only", Interval: stripe.PlanIntervalMonth}}}},
	}
	st, err := renewalState(sub)
	require.NoError(t, err)
	require.Equal(t, "plan_only", st.PlanID)
	require.Equal(t, "month", st.BillingInterval)
}

func TestState_RequiresItem(t *testing.T) {
	_, err := activationState(&stripe.Subscription{ID: "sub_1"})
	require.ErrorIs(t, err, ErrIncompleteSubscription)
	_, err = renewalState(&stripe.Subscription{ID: "sub_1", Items: &stripe.SubscriptionItemList{}})
	require.ErrorIs(t, err, ErrIncompleteSubscription)
}
