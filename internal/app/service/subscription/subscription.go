package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_api"
	"github.com/notemark/notemark/pkg/config"
	"github.com/notemark/notemark/pkg/logctx"
	"github.com/notemark/notemark/pkg/metrics"
	"github.com/notemark/notemark/pkg/tool"
	"github.com/notemark/notemark/pkg/types"
)

// Result tells the caller whether local state changed.
type Result string

const (
	ResultApplied Result = "applied"
	ResultNoOp    Result = "noop"
)

type ActivateRequest struct {
	EventID                string
	ExternalSubscriptionID string
	CustomerID             string
}

type RenewRequest struct {
	EventID   string
	InvoiceID string
	// ExternalSubscriptionID may be empty, in which case it is read from
	// the invoice.
	ExternalSubscriptionID string
}

// listableColumns bounds the columns admin filters and sorts may name.
var listableColumns = []string{
	"id", "external_subscription_id", "owner_user_id", "status", "plan_id",
	"billing_interval", "current_period_start", "current_period_end",
	"created_at", "updated_at",
}

type Service struct {
	subs     SubscriptionStore
	users    UserStore
	provider stripe_api.Provider
	metrics  *metrics.ReconcileMetrics
	log      *zap.SugaredLogger

	renewAttempts int
	renewDelay    time.Duration

	// pending tracks change-log writes still in flight.
	pending sync.WaitGroup
}

func NewService(cfg *config.Config, subs SubscriptionStore, users UserStore, provider stripe_api.Provider, m *metrics.ReconcileMetrics, log *zap.SugaredLogger) *Service {
	return &Service{
		subs:          subs,
		users:         users,
		provider:      provider,
		metrics:       m,
		log:           log,
		renewAttempts: max(cfg.Reconcile.RenewAttempts, 1),
		renewDelay:    cfg.Reconcile.RenewDelay,
	}
}

// Activate creates the local row for a subscription started at checkout.
// A row that already exists for the external id is left untouched.
func (s *Service) Activate(ctx context.Context, req *ActivateRequest) (Result, error) {
	defer s.metrics.ObserveDuration("activate", time.Now())
	lg := logctx.FromCtx(ctx, s.log).With("external_subscription_id", req.ExternalSubscriptionID)

	if req.ExternalSubscriptionID == "" {
		lg.Infow("activate_skipped_no_subscription", "customer_id", req.CustomerID)
		return ResultNoOp, nil
	}

	remote, err := s.provider.GetSubscription(ctx, req.ExternalSubscriptionID)
	if err != nil {
		return "", err
	}
	state, err := activationState(remote)
	if err != nil {
		return "", err
	}

	owner, err := s.users.FindByStripeCustomerID(ctx, req.CustomerID)
	if err != nil {
		return "", err
	}

	row := &models.Subscription{
		ID:                     tool.GenerateUUIDV7(),
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		OwnerUserID:            owner.ID,
		Status:                 state.Status,
		PlanID:                 state.PlanID,
		BillingInterval:        state.BillingInterval,
		CurrentPeriodStart:     state.CurrentPeriodStart,
		CurrentPeriodEnd:       state.CurrentPeriodEnd,
	}
	created, err := s.subs.CreateIfAbsent(ctx, row)
	if err != nil {
		return "", err
	}
	if !created {
		lg.Infow("activate_subscription_exists")
		return ResultNoOp, nil
	}

	lg.Infow("activate_subscription_created", "owner_user_id", owner.ID, "plan_id", row.PlanID, "status", row.Status)
	s.saveLog(ctx, types.SubscriptionChangeReasonActivate, req.EventID, nil, row)
	return ResultApplied, nil
}

// Renew refreshes status, plan and billing period after a paid invoice.
// If the row is not there yet it waits a bounded time for the activation
// to land, then gives up without error.
func (s *Service) Renew(ctx context.Context, req *RenewRequest) (Result, error) {
	defer s.metrics.ObserveDuration("renew", time.Now())

	externalID := req.ExternalSubscriptionID
	if externalID == "" && req.InvoiceID != "" {
		inv, err := s.provider.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return "", err
		}
		if inv.Subscription != nil {
			externalID = inv.Subscription.ID
		}
	}
	lg := logctx.FromCtx(ctx, s.log).With("external_subscription_id", externalID, "invoice_id", req.InvoiceID)
	if externalID == "" {
		lg.Infow("renew_skipped_no_subscription")
		return ResultNoOp, nil
	}

	before, err := s.awaitSubscription(ctx, externalID)
	if errors.Is(err, errSubscriptionNotFound) {
		lg.Warnw("renew_subscription_not_found", "attempts", s.renewAttempts)
		s.metrics.IncRenewOrphan()
		return ResultNoOp, nil
	}
	if err != nil {
		return "", err
	}

	// Read the provider after the wait so the freshest period is written.
	remote, err := s.provider.GetSubscription(ctx, externalID)
	if err != nil {
		return "", err
	}
	state, err := renewalState(remote)
	if err != nil {
		return "", err
	}

	upd := &Update{
		Status:             state.Status,
		PlanID:             state.PlanID,
		CurrentPeriodStart: state.CurrentPeriodStart,
		CurrentPeriodEnd:   state.CurrentPeriodEnd,
	}
	if err := s.subs.UpdateByExternalID(ctx, externalID, upd); err != nil {
		if errors.Is(err, errSubscriptionNotFound) {
			lg.Warnw("renew_subscription_not_found")
			s.metrics.IncRenewOrphan()
			return ResultNoOp, nil
		}
		return "", err
	}

	after := *before
	after.Status = upd.Status
	after.PlanID = upd.PlanID
	after.CurrentPeriodStart = upd.CurrentPeriodStart
	after.CurrentPeriodEnd = upd.CurrentPeriodEnd

	lg.Infow("renew_subscription_updated", "plan_id", after.PlanID, "status", after.Status, "current_period_end", after.CurrentPeriodEnd)
	s.saveLog(ctx, types.SubscriptionChangeReasonRenew, req.EventID, before, &after)
	return ResultApplied, nil
}

// awaitSubscription reads the row up to renewAttempts times, renewDelay
// apart. Each read stands alone; nothing is held between attempts. The last
// miss returns without sleeping, so the wait is at most
// (renewAttempts-1)*renewDelay.
func (s *Service) awaitSubscription(ctx context.Context, externalID string) (*models.Subscription, error) {
	var (
		found   *models.Subscription
		attempt int
	)
	op := func() error {
		attempt++
		sub, err := s.subs.FindByExternalID(ctx, externalID)
		if errors.Is(err, errSubscriptionNotFound) {
			logctx.FromCtx(ctx, s.log).Infow("renew_subscription_pending", "external_subscription_id", externalID, "attempt", attempt)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		found = sub
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.renewDelay), uint64(s.renewAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return found, nil
}

// saveLog writes the change log asynchronously; errors are logged only.
func (s *Service) saveLog(ctx context.Context, reason types.SubscriptionChangeReason, eventID string, before, after *models.Subscription) {
	entry := &models.SubscriptionLog{
		ID:                     tool.GenerateUUIDV7(),
		ExternalSubscriptionID: after.ExternalSubscriptionID,
		Reason:                 reason,
		Before:                 datatypes.NewJSONType(before),
		After:                  datatypes.NewJSONType(after),
		Extra:                  datatypes.JSONMap{"event_id": eventID},
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.subs.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save subscription log: %v", err)
		}
	}()
}

// Wait blocks until in-flight change-log writes finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListSubscriptions pages through subscriptions for the admin API.
func (s *Service) ListSubscriptions(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	for _, f := range req.Filters {
		if err := f.CheckField(listableColumns); err != nil {
			return nil, err
		}
	}
	if req.SortBy != "" && !lo.Contains(listableColumns, req.SortBy) {
		return nil, fmt.Errorf("unsupported sort field: %s", req.SortBy)
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	return s.subs.List(ctx, req)
}
