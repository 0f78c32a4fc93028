package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	nh "github.com/notemark/notemark/internal/app/service/notification_handler"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_notification"
	"github.com/notemark/notemark/pkg/logctx"
	"github.com/notemark/notemark/pkg/response"
)

// maxWebhookBodyBytes caps a Stripe event body; real events are far smaller.
const maxWebhookBodyBytes = 1 << 20

// StripeNotificationHandler turns a raw Stripe delivery into an outcome.
type StripeNotificationHandler interface {
	HandleNotification(ctx context.Context, rawBody []byte, signatureHeader string) (nh.Outcome, error)
}

type WebhookResult struct {
	Outcome nh.Outcome `json:"outcome"`
}

// @Summary      Stripe Webhook
// @Description  Receives Stripe events. The raw body is verified against the Stripe-Signature header before anything else happens. 400 means the event was rejected, 500 asks Stripe to redeliver.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature header"
// @Param        payload body string true "Raw Stripe event"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      400  {object}  handlers.RespWebhook
// @Failure      500  {object}  handlers.RespWebhook
// @Router       /api/v2/payment/webhook/stripe [post]
func ApiStripeWebhook(h StripeNotificationHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			logctx.FromGin(c, log).Warnw("webhook_stripe_body_unreadable", "too_large", errors.As(err, &tooLarge), "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, &WebhookResult{Outcome: nh.OutcomeRejected}))
			return
		}

		outcome, err := h.HandleNotification(c.Request.Context(), body, c.GetHeader(stripe_notification.SignatureHeader))
		res := &WebhookResult{Outcome: outcome}
		switch {
		case err == nil:
			c.JSON(outcome.StatusCode(), response.OKT(res))
		case outcome == nh.OutcomeRejected:
			c.JSON(outcome.StatusCode(), response.ErrorT(response.APIResponseCodeBadRequest, res))
		default:
			c.JSON(outcome.StatusCode(), response.ErrorT(response.APIResponseCodeError, res))
		}
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h StripeNotificationHandler, log *zap.SugaredLogger) {
	// Mount under provided group, expected at "/api/v2/payment/webhook"
	r.POST("/stripe", ApiStripeWebhook(h, log))
}
