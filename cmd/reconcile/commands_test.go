package main

import (
	"bytes"
	"context"
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

const devSalon = "salon-dev"

// memoryServices construye una sola vez los servicios en memoria para que el estado persista
// entre comandos.
func memoryServices(t *testing.T) (*bootstrap.Services, buildFunc) {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "test", Storage: "memory", DevSalonID: devSalon},
		Payments:  config.PaymentsConfig{Provider: "fake", Timeout: 5 * time.Second},
		Billing:   config.BillingConfig{TrialDays: 14},
		Reconcile: config.ReconcileConfig{Concurrency: 2, PageSize: 10},
	}
	svc, cleanup, err := bootstrap.Build(t.Context(), cfg, logger.New(logger.Config{Env: "test", Level: "error"}))
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return svc, func(context.Context) (*bootstrap.Services, func(), error) {
		return svc, func() {}, nil
	}
}

func execute(t *testing.T, build buildFunc, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCheck_SinDivergencias(t *testing.T) {
	svc, build := memoryServices(t)
	_, err := svc.Lifecycle.Create(t.Context(), subscription.CreateInput{
		SalonID: devSalon, Tier: tier.Professional, BillingCycle: tier.Monthly, IdempotencyKey: "alta",
	})
	require.NoError(t, err)

	out, err := execute(t, build, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "revisadas=1 divergencias=0 fallos=0")

	out, err = execute(t, build, "drift")
	require.NoError(t, err)
	assert.Contains(t, out, "sin divergencias pendientes")
}

func TestApplyScheduled_DowngradeVencido(t *testing.T) {
	svc, build := memoryServices(t)
	_, err := svc.Lifecycle.Create(t.Context(), subscription.CreateInput{
		SalonID: devSalon, Tier: tier.Enterprise, BillingCycle: tier.Monthly, IdempotencyKey: "alta",
	})
	require.NoError(t, err)
	_, err = svc.Lifecycle.Downgrade(t.Context(), subscription.DowngradeInput{
		SalonID: devSalon, NewTier: tier.Starter, IdempotencyKey: "baja",
	})
	require.NoError(t, err)

	out, err := execute(t, build, "apply-scheduled")
	require.NoError(t, err)
	assert.Contains(t, out, "vencidos=0", "el periodo actual aún no terminó")

	at := time.Now().UTC().AddDate(0, 2, 0).Format(time.RFC3339)
	out, err = execute(t, build, "apply-scheduled", "--at", at)
	require.NoError(t, err)
	assert.Contains(t, out, "vencidos=1 aplicados=1 fallos=0")

	resp, err := svc.Lifecycle.Get(t.Context(), devSalon)
	require.NoError(t, err)
	assert.Equal(t, "starter", resp.Tier)
	assert.Nil(t, resp.ScheduledChange)
}

func TestApplyScheduled_FechaInvalida(t *testing.T) {
	_, build := memoryServices(t)
	_, err := execute(t, build, "apply-scheduled", "--at", "mañana")
	assert.Error(t, err)
}

func TestRebuild(t *testing.T) {
	svc, build := memoryServices(t)
	_, err := svc.Lifecycle.Create(t.Context(), subscription.CreateInput{
		SalonID: devSalon, Tier: tier.Enterprise, BillingCycle: tier.Yearly, IdempotencyKey: "alta",
	})
	require.NoError(t, err)

	out, err := execute(t, build, "rebuild", "--salon", devSalon)
	require.NoError(t, err)
	assert.Contains(t, out, "plan=enterprise ciclo=yearly estado=active")

	_, err = execute(t, build, "rebuild")
	assert.Error(t, err, "--salon es obligatorio")
}
