package notification_handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/internal/models"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_notification"
	"github.com/notemark/notemark/pkg/config"
	"github.com/notemark/notemark/pkg/logctx"
	"github.com/notemark/notemark/pkg/metrics"
	"github.com/notemark/notemark/pkg/types"
)

// Reconciler applies authenticated events to local subscription state.
type Reconciler interface {
	Activate(ctx context.Context, req *subscription.ActivateRequest) (subscription.Result, error)
	Renew(ctx context.Context, req *subscription.RenewRequest) (subscription.Result, error)
}

// NotificationLogger records raw notifications for auditing.
type NotificationLogger interface {
	Save(ctx context.Context, log *models.PaymentNotificationLog)
}

type NotificationHandler struct {
	webhookSecret string
	reconciler    Reconciler
	notifLog      NotificationLogger
	metrics       *metrics.ReconcileMetrics
	Logger        *zap.SugaredLogger
}

func NewNotificationHandler(cfg *config.Config, reconciler Reconciler, notifLog NotificationLogger, m *metrics.ReconcileMetrics, log *zap.SugaredLogger) *NotificationHandler {
	return &NotificationHandler{
		webhookSecret: cfg.Stripe.WebhookSecret,
		reconciler:    reconciler,
		notifLog:      notifLog,
		metrics:       m,
		Logger:        log,
	}
}

// HandleNotification authenticates rawBody, routes it by event type and
// reports the outcome. Nothing is read or written before the signature
// checks out.
func (h *NotificationHandler) HandleNotification(ctx context.Context, rawBody []byte, signatureHeader string) (Outcome, error) {
	ev, err := stripe_notification.Verify(rawBody, signatureHeader, h.webhookSecret)
	if err != nil {
		logctx.FromCtx(ctx, h.Logger).Warnw("webhook_stripe_rejected", "error", err.Error())
		h.metrics.ObserveOutcome("", string(OutcomeRejected))
		return OutcomeRejected, err
	}

	ctx = logctx.WithEventID(ctx, ev.ID)
	lg := logctx.FromCtx(ctx, h.Logger).With("event_type", ev.Type)
	lg.Infow("webhook_stripe_received")

	h.notifLog.Save(ctx, h.notificationLog(ctx, ev, models.PaymentNotificationLogStatusReceived, nil))

	res, err := h.route(ctx, ev)
	outcome := classify(res, err)
	h.metrics.ObserveOutcome(string(ev.Type), string(outcome))

	result := map[string]any{"outcome": outcome}
	status := models.PaymentNotificationLogStatusHandled
	if err != nil {
		result["error"] = err.Error()
		status = models.PaymentNotificationLogStatusHandleFailed
		lg.Errorw("webhook_stripe_handle_error", "outcome", outcome, "error", err.Error())
	} else {
		lg.Infow("webhook_stripe_handled", "outcome", outcome)
	}
	h.notifLog.Save(ctx, h.notificationLog(ctx, ev, status, result))

	return outcome, err
}

// route dispatches on the fixed set of handled event types. Every other
// type is acknowledged without touching state.
func (h *NotificationHandler) route(ctx context.Context, ev *stripe_notification.AuthenticatedEvent) (subscription.Result, error) {
	switch ev.Type {
	case types.EventTypeCheckoutSessionCompleted:
		req, err := parseCheckoutSession(ev)
		if err != nil {
			return "", err
		}
		return h.reconciler.Activate(ctx, req)
	case types.EventTypeInvoicePaymentSucceeded:
		req, err := parseInvoice(ev)
		if err != nil {
			return "", err
		}
		return h.reconciler.Renew(ctx, req)
	default:
		logctx.FromCtx(ctx, h.Logger).Infow("webhook_stripe_unhandled_type", "event_type", ev.Type)
		return subscription.ResultNoOp, nil
	}
}

func (h *NotificationHandler) notificationLog(ctx context.Context, ev *stripe_notification.AuthenticatedEvent, status models.PaymentNotificationLogStatus, result map[string]any) *models.PaymentNotificationLog {
	entry := &models.PaymentNotificationLog{
		ProviderID:       string(types.PaymentProviderStripe),
		EventID:          ev.ID,
		EventType:        string(ev.Type),
		TraceID:          logctx.TraceID(ctx),
		NotificationTime: ev.Created,
		Data:             datatypes.JSON(ev.Payload),
		Status:           status,
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			j := datatypes.JSON(b)
			entry.Result = &j
		}
	}
	return entry
}
