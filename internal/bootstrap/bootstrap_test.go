package bootstrap_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/bootstrap"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/pkg/config"
	"github.com/jhoicas/Salones-api/pkg/logger"
)

func devConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Env: "test", Storage: "memory", DevSalonID: "salon-dev"},
		Payments: config.PaymentsConfig{Provider: "fake", Timeout: 5 * time.Second},
		Billing:  config.BillingConfig{TrialDays: 14, InvoiceDueDays: 30, MaxInvoiceAmount: "5000"},
		Reconcile: config.ReconcileConfig{
			Concurrency: 2,
			PageSize:    10,
		},
	}
}

func TestBuild_MemoriaYProcesadorSimulado(t *testing.T) {
	log := logger.New(logger.Config{Env: "test", Level: "error"})
	svc, cleanup, err := bootstrap.Build(t.Context(), devConfig(), log)
	require.NoError(t, err)
	defer cleanup()

	resp, err := svc.Lifecycle.Create(t.Context(), subscription.CreateInput{
		SalonID:        "salon-dev",
		Tier:           tier.Enterprise,
		BillingCycle:   tier.Monthly,
		IdempotencyKey: "alta-dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "enterprise", resp.Tier)

	a, err := svc.SMS.MonthlyAllowance(t.Context(), "salon-dev")
	require.NoError(t, err)
	assert.Equal(t, 500, a.Allowance)

	res, err := svc.Reconciler.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Zero(t, res.Drifted)
}

func TestPriceTable_DesdeConfiguracion(t *testing.T) {
	catalog := tier.Default()
	prices := make(map[string]string, len(config.PriceKeys))
	for _, k := range config.PriceKeys {
		prices[k] = "price_" + k
	}
	pt, err := bootstrap.PriceTable(config.PaymentsConfig{Provider: "stripe", Prices: prices}, catalog)
	require.NoError(t, err)

	ref, ok := pt.PriceRef(tier.Professional, tier.Yearly)
	require.True(t, ok)
	assert.Equal(t, "price_professional_yearly", ref)

	delete(prices, "starter_monthly")
	_, err = bootstrap.PriceTable(config.PaymentsConfig{Provider: "stripe", Prices: prices}, catalog)
	assert.Error(t, err, "todas las combinaciones deben tener precio")

	_, err = bootstrap.PriceTable(config.PaymentsConfig{Provider: "stripe", Prices: map[string]string{"enterprise": "x"}}, catalog)
	assert.Error(t, err)
}

func TestLifecycleConfig_ImporteMaximoInvalido(t *testing.T) {
	cfg := devConfig()
	cfg.Billing.MaxInvoiceAmount = "mucho"
	_, err := bootstrap.LifecycleConfig(cfg)
	assert.Error(t, err)

	cfg.Billing.MaxInvoiceAmount = "2500.50"
	lc, err := bootstrap.LifecycleConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "2500.5", lc.MaxInvoiceAmount.String())
	assert.Equal(t, 30, lc.InvoiceDueDays)
}
