package stripe_notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/notemark/notemark/pkg/types"
)

// SignatureHeader is the request header carrying the Stripe signature.
const SignatureHeader = "Stripe-Signature"

// ErrAuthentication is returned for any payload that cannot be proven to
// come from Stripe: missing or bad signature, stale timestamp, or a body
// that is not an event.
var ErrAuthentication = errors.New("stripe notification authentication failed")

// AuthenticatedEvent is a signature-checked Stripe event. Payload holds the
// raw data.object so each event type can decode its own shape.
type AuthenticatedEvent struct {
	ID       string
	Type     types.EventType
	Created  time.Time
	Livemode bool
	Payload  json.RawMessage
}

// Verify checks signatureHeader against rawBody using the endpoint secret
// and returns the parsed event. It performs no I/O.
func Verify(rawBody []byte, signatureHeader string, sharedSecret string) (*AuthenticatedEvent, error) {
	if strings.TrimSpace(sharedSecret) == "" {
		return nil, fmt.Errorf("%w: webhook secret is empty", ErrAuthentication)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, webhook.ErrNotSigned)
	}

	if err := webhook.ValidatePayloadWithTolerance(rawBody, signatureHeader, sharedSecret, webhook.DefaultTolerance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	// Decoded here rather than through ConstructEvent, which refuses events
	// rendered for a different API version than this library's.
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: failed to parse event: %w", ErrAuthentication, err)
	}

	if event.Type == "" {
		return nil, fmt.Errorf("%w: event type is empty", ErrAuthentication)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event %s has no data object", ErrAuthentication, event.ID)
	}

	return &AuthenticatedEvent{
		ID:       event.ID,
		Type:     types.EventType(event.Type),
		Created:  time.Unix(event.Created, 0),
		Livemode: event.Livemode,
		Payload:  event.Data.Raw,
	}, nil
}
