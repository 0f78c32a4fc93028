package notification_handler

import (
	"errors"
	"net/http"

	"github.com/notemark/notemark/internal/app/service/subscription"
	"github.com/notemark/notemark/internal/platform/stripe/stripe_notification"
)

// Outcome is the delivery verdict returned to the provider.
type Outcome string

const (
	// OutcomeRejected: the payload is not trusted or not understood. Do not retry.
	OutcomeRejected Outcome = "rejected"
	// OutcomeNoOp: accepted, nothing changed.
	OutcomeNoOp Outcome = "acknowledged_noop"
	// OutcomeApplied: accepted, local state changed.
	OutcomeApplied Outcome = "acknowledged_applied"
	// OutcomeFailed: processing failed; the provider should redeliver.
	OutcomeFailed Outcome = "failed"
)

func (o Outcome) StatusCode() int {
	switch o {
	case OutcomeRejected:
		return http.StatusBadRequest
	case OutcomeNoOp, OutcomeApplied:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// classify maps a reconciliation result onto an outcome. Anything that is
// not an authentication or payload error is a failure worth redelivering,
// including an activation whose user does not exist yet.
func classify(res subscription.Result, err error) Outcome {
	switch {
	case err == nil && res == subscription.ResultApplied:
		return OutcomeApplied
	case err == nil:
		return OutcomeNoOp
	case errors.Is(err, stripe_notification.ErrAuthentication), errors.Is(err, ErrMalformedPayload):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
