package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"github.com/notemark/notemark/internal/platform/stripe/stripetest"
	"github.com/notemark/notemark/pkg/types"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	nextEnd     = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestActivate_CreatesRowForOwner(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))

	res, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)

	row := f.subs.get("sub_1")
	require.NotNil(t, row)
	require.Equal(t, "u_1", row.OwnerUserID)
	require.Equal(t, types.SubscriptionStatusActive, row.Status)
	require.Equal(t, "price_pro_month", row.PlanID)
	require.Equal(t, "month", row.BillingInterval)
	require.True(t, periodStart.Equal(row.CurrentPeriodStart))
	require.True(t, periodEnd.Equal(row.CurrentPeriodEnd))
	require.NotEmpty(t, row.ID)

	require.Eventually(t, func() bool { return f.subs.logCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestActivate_IsIdempotent(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
	req := &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"}

	first, err := f.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ResultApplied, first)

	second, err := f.svc.Activate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ResultNoOp, second)
	require.Equal(t, 1, f.subs.count())
}

func TestActivate_ConcurrentDuplicatesCreateOneRow(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))

	const n = 8
	results := make([]Result, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i] == ResultApplied {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	require.Equal(t, 1, f.subs.count())
}

func TestActivate_UnknownCustomerIsPrecondition(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_2", "active", "price_pro_month", "month", periodStart, periodEnd))

	_, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_2", ExternalSubscriptionID: "sub_2", CustomerID: "cus_unknown"})
	require.ErrorIs(t, err, ErrUserNotFound)
	require.Equal(t, 0, f.subs.count())
}

func TestActivate_ProviderErrorSurfaces(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.Err = errors.New("stripe unavailable")

	_, err := f.svc.Activate(context.Background(), &ActivateRequest{ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.Error(t, err)
	require.Equal(t, 0, f.subs.count())
}

func TestActivate_WithoutSubscriptionIsNoOp(t *testing.T) {
	f := newFixture(3, time.Millisecond)

	res, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_3", CustomerID: "cus_9"})
	require.NoError(t, err)
	require.Equal(t, ResultNoOp, res)
	require.Equal(t, 0, f.provider.Calls())
}

func TestRenew_UpdatesExistingRow(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
	_, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)

	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_year", "year", periodEnd, nextEnd))
	res, err := f.svc.Renew(context.Background(), &RenewRequest{EventID: "evt_2", InvoiceID: "in_1", ExternalSubscriptionID: "sub_1"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)

	row := f.subs.get("sub_1")
	require.Equal(t, "price_pro_year", row.PlanID)
	require.True(t, nextEnd.Equal(row.CurrentPeriodEnd))
	require.Equal(t, "u_1", row.OwnerUserID)
	// Interval is written once at activation.
	require.Equal(t, "month", row.BillingInterval)
}

func TestRenew_ResolvesSubscriptionFromInvoice(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
	f.provider.PutInvoice(&stripe.Invoice{ID: "in_1", Subscription: &stripe.Subscription{ID: "sub_1"}})
	_, err := f.svc.Activate(context.Background(), &ActivateRequest{ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)

	res, err := f.svc.Renew(context.Background(), &RenewRequest{EventID: "evt_2", InvoiceID: "in_1"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)
}

func TestRenew_InvoiceWithoutSubscriptionIsNoOp(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutInvoice(&stripe.Invoice{ID: "in_oneoff"})

	res, err := f.svc.Renew(context.Background(), &RenewRequest{InvoiceID: "in_oneoff"})
	require.NoError(t, err)
	require.Equal(t, ResultNoOp, res)
	require.Equal(t, 0, f.subs.findCalls)
}

func TestRenew_BoundedWaitThenNoOp(t *testing.T) {
	f := newFixture(3, 20*time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_9", "active", "price_pro_month", "month", periodStart, periodEnd))

	start := time.Now()
	res, err := f.svc.Renew(context.Background(), &RenewRequest{EventID: "evt_9", ExternalSubscriptionID: "sub_9"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, ResultNoOp, res)
	require.Equal(t, 3, f.subs.findCalls)
	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	require.Equal(t, 0, f.subs.count())
	require.Equal(t, 0, f.provider.Calls())
}

func TestRenew_StopsWaitingOnStorageError(t *testing.T) {
	f := newFixture(5, 20*time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
	storageErr := errors.New("connection refused")
	f.subs.findErr = storageErr

	_, err := f.svc.Renew(context.Background(), &RenewRequest{ExternalSubscriptionID: "sub_1"})
	require.ErrorIs(t, err, storageErr)
	require.Equal(t, 1, f.subs.findCalls)
}

func TestRenew_StopsWaitingWhenContextCancelled(t *testing.T) {
	f := newFixture(10, time.Second)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.svc.Renew(ctx, &RenewRequest{ExternalSubscriptionID: "sub_1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

// The renewal arrives first; the activation lands while it waits.
func TestRenewBeforeActivate_ConvergesToRenewedState(t *testing.T) {
	f := newFixture(3, 5*time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))

	f.subs.onFind = func(call int) {
		if call != 2 {
			return
		}
		res, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
		require.NoError(t, err)
		require.Equal(t, ResultApplied, res)
		f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodEnd, nextEnd))
	}

	res, err := f.svc.Renew(context.Background(), &RenewRequest{EventID: "evt_2", ExternalSubscriptionID: "sub_1"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)
	require.Equal(t, 2, f.subs.findCalls)
	row := f.subs.get("sub_1")
	require.Equal(t, "u_1", row.OwnerUserID)
	require.True(t, nextEnd.Equal(row.CurrentPeriodEnd))
}

func TestActivateAndRenew_EitherOrderSameFinalState(t *testing.T) {
	run := func(renewFirst bool) *fixture {
		f := newFixture(3, 5*time.Millisecond)
		f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
		activate := func() {
			_, err := f.svc.Activate(context.Background(), &ActivateRequest{ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
			require.NoError(t, err)
		}
		renew := func() {
			_, err := f.svc.Renew(context.Background(), &RenewRequest{ExternalSubscriptionID: "sub_1"})
			require.NoError(t, err)
		}
		if renewFirst {
			f.subs.onFind = func(call int) {
				if call == 1 {
					activate()
				}
			}
			renew()
		} else {
			activate()
			renew()
		}
		return f
	}

	a := run(false).subs.get("sub_1")
	b := run(true).subs.get("sub_1")
	require.Equal(t, a.OwnerUserID, b.OwnerUserID)
	require.Equal(t, a.Status, b.Status)
	require.Equal(t, a.PlanID, b.PlanID)
	require.True(t, a.CurrentPeriodEnd.Equal(b.CurrentPeriodEnd))
}

func TestScenario_CheckoutThenInvoice(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_basic", "month", periodStart, periodEnd))

	res, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_a", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)

	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_basic", "month", periodEnd, nextEnd))
	res, err = f.svc.Renew(context.Background(), &RenewRequest{EventID: "evt_b", InvoiceID: "in_1", ExternalSubscriptionID: "sub_1"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)

	row := f.subs.get("sub_1")
	require.Equal(t, "u_1", row.OwnerUserID)
	require.True(t, periodEnd.Equal(row.CurrentPeriodStart))
	require.True(t, nextEnd.Equal(row.CurrentPeriodEnd))

	// A redelivered checkout changes nothing.
	res, err = f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_a", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)
	require.Equal(t, ResultNoOp, res)
	require.True(t, nextEnd.Equal(f.subs.get("sub_1").CurrentPeriodEnd))
}

func TestListSubscriptions_RejectsUnknownColumns(t *testing.T) {
	f := newFixture(1, 0)

	_, err := f.svc.ListSubscriptions(context.Background(), &ListRequest{
		Filters: []*types.CommonFilter{{Field: "status; drop table users", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}},
	})
	require.Error(t, err)

	_, err = f.svc.ListSubscriptions(context.Background(), &ListRequest{SortBy: "password"})
	require.Error(t, err)

	req := &ListRequest{Filters: []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"active"}}}}
	res, err := f.svc.ListSubscriptions(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Total)
	require.Equal(t, 10, req.Size)
}

func TestWait_BlocksUntilChangeLogIsWritten(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	f.provider.PutSubscription(stripetest.Subscription("sub_1", "active", "price_pro_month", "month", periodStart, periodEnd))
	gate := make(chan struct{})
	f.subs.saveGate = gate

	res, err := f.svc.Activate(context.Background(), &ActivateRequest{EventID: "evt_1", ExternalSubscriptionID: "sub_1", CustomerID: "cus_9"})
	require.NoError(t, err)
	require.Equal(t, ResultApplied, res)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.svc.Wait(short), context.DeadlineExceeded)
	require.Equal(t, 0, f.subs.logCount())

	close(gate)
	require.NoError(t, f.svc.Wait(context.Background()))
	require.Equal(t, 1, f.subs.logCount())
}

func TestWait_ReturnsImmediatelyWhenIdle(t *testing.T) {
	f := newFixture(3, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Wait(ctx))
}
