package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/internal/platform/stripe/stripetest"
	"github.com/notemark/notemark/pkg/config"
)

type fakeSubscriptionStore struct {
	mu        sync.Mutex
	rows      map[string]*models.Subscription
	logs      []*models.SubscriptionLog
	findCalls int
	creates   int

	// onFind runs before each lookup with the 1-based call number.
	onFind  func(call int)
	findErr error
	// saveGate, when set, holds SaveLog until it is closed.
	saveGate chan struct{}
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{rows: map[string]*models.Subscription{}}
}

func (f *fakeSubscriptionStore) CreateIfAbsent(_ context.Context, sub *models.Subscription) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[sub.ExternalSubscriptionID]; ok {
		return false, nil
	}
	cp := *sub
	f.rows[sub.ExternalSubscriptionID] = &cp
	f.creates++
	return true, nil
}

func (f *fakeSubscriptionStore) FindByExternalID(_ context.Context, externalID string) (*models.Subscription, error) {
	f.mu.Lock()
	f.findCalls++
	call := f.findCalls
	hook := f.onFind
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	row, ok := f.rows[externalID]
	if !ok {
		return nil, errSubscriptionNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeSubscriptionStore) UpdateByExternalID(_ context.Context, externalID string, upd *Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[externalID]
	if !ok {
		return errSubscriptionNotFound
	}
	row.Status = upd.Status
	row.PlanID = upd.PlanID
	row.CurrentPeriodStart = upd.CurrentPeriodStart
	row.CurrentPeriodEnd = upd.CurrentPeriodEnd
	return nil
}

func (f *fakeSubscriptionStore) SaveLog(_ context.Context, entry *models.SubscriptionLog) error {
	f.mu.Lock()
	gate := f.saveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeSubscriptionStore) List(_ context.Context, req *ListRequest) (*ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &ListResponse{}
	for _, row := range f.rows {
		res.Items = append(res.Items, row)
	}
	res.Total = int64(len(res.Items))
	return res, nil
}

func (f *fakeSubscriptionStore) get(externalID string) *models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[externalID]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

func (f *fakeSubscriptionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeSubscriptionStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

type fakeUserStore struct {
	byCustomer map[string]*models.User
}

func (f *fakeUserStore) FindByStripeCustomerID(_ context.Context, customerID string) (*models.User, error) {
	if u, ok := f.byCustomer[customerID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUserNotFound, customerID)
}

type fixture struct {
	svc      *Service
	subs     *fakeSubscriptionStore
	provider *stripetest.Provider
}

func newFixture(attempts int, delay time.Duration) *fixture {
	cfg := &config.Config{Reconcile: config.ReconcileConfig{RenewAttempts: attempts, RenewDelay: delay}}
	subs := newFakeSubscriptionStore()
	cus := "cus_9"
	users := &fakeUserStore{byCustomer: map[string]*models.User{
		"cus_9": {ID: "u_1", StripeCustomerID: &cus},
	}}
	provider := stripetest.NewProvider()
	return &fixture{
		svc:      NewService(cfg, subs, users, provider, nil, zap.NewNop().Sugar()),
		subs:     subs,
		provider: provider,
	}
}
