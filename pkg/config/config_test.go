package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/pkg/config"
)

func TestLoad_ProcesadorFakePorDefecto(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "fake")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "7")
	t.Setenv("STRIPE_PRICE_ENTERPRISE_YEARLY", "price_ent_y")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Payments.Provider)
	assert.Equal(t, 7*time.Second, cfg.Payments.Timeout)
	assert.Equal(t, "price_ent_y", cfg.Payments.Prices["enterprise_yearly"])
	assert.Equal(t, 14, cfg.Billing.TrialDays)
	assert.Equal(t, 4, cfg.Reconcile.Concurrency)
}

func TestLoad_StripeSinPreciosFalla(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_PRICE_")
}

func TestLoad_ProveedorDesconocido(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "paypal")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_BloqueoMasCortoQueLasLlamadasFalla(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "fake")
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "15")
	t.Setenv("REDIS_LOCK_TTL_SECONDS", "60")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_LOCK_TTL_SECONDS")

	t.Setenv("REDIS_LOCK_TTL_SECONDS", "75")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 75*time.Second, cfg.Redis.LockTTL)
}
