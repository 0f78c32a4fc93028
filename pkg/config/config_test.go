package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestNew_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, cfg.Env)
	require.Equal(t, 8888, cfg.Server.Port)
	require.Equal(t, 3, cfg.Reconcile.RenewAttempts)
	require.Equal(t, time.Second, cfg.Reconcile.RenewDelay)
	require.Equal(t, "whsec_123", cfg.Stripe.WebhookSecret)
	require.Empty(t, cfg.Admin.JWTSecret)
}

func TestNew_EnvOverridesRenewPolicy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_RECONCILE_RENEW_ATTEMPTS", "5")
	t.Setenv("APP_RECONCILE_RENEW_DELAY", "250ms")

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, 5, cfg.Reconcile.RenewAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Reconcile.RenewDelay)
}

func TestNew_MissingWebhookSecretFailsAtStartup(t *testing.T) {
	t.Setenv("APP_CONFIG_NAME", "does-not-exist")
	t.Setenv("APP_STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("APP_STRIPE_WEBHOOK_SECRET", "")

	_, err := New()
	require.Error(t, err)
	require.Contains(t, err.Error(), "WebhookSecret")
}

func TestValidate_RejectsZeroAttempts(t *testing.T) {
	cfg := &Config{
		Env:       EnvProd,
		Server:    ServerConfig{Port: 80},
		Database:  DBConfig{DSN: "postgres://x"},
		Stripe:    StripeConfig{SecretKey: "sk", WebhookSecret: "whsec"},
		Reconcile: ReconcileConfig{RenewAttempts: 0, RenewDelay: time.Second},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "RenewAttempts")
}
