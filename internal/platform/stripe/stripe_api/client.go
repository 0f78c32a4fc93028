package stripe_api

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"

	"github.com/notemark/notemark/pkg/config"
)

// Provider is the subset of the Stripe API the reconciler reads from.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	GetInvoice(ctx context.Context, id string) (*stripe.Invoice, error)
}

type Client struct {
	api *client.API
}

func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil || cfg.Stripe.SecretKey == "" {
		return nil, errors.New("stripe secret key is empty")
	}
	return &Client{api: client.New(cfg.Stripe.SecretKey, nil)}, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", id, err)
	}
	return sub, nil
}

func (c *Client) GetInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	in, err := c.api.Invoices.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve invoice %s: %w", id, err)
	}
	return in, nil
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(Provider))),
	),
)
