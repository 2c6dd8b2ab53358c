package smsbudget_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/application/smsbudget"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/sms"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/memory"
)

func newService(t *testing.T) *smsbudget.Service {
	t.Helper()
	salons := memory.NewSalonRepository(
		entity.Salon{ID: "ent", Name: "Salón Norte", StaffCount: 8},
		entity.Salon{ID: "pro", Name: "Salón Sur", StaffCount: 8},
		entity.Salon{ID: "baja", Name: "Salón Este", StaffCount: 3},
		entity.Salon{ID: "nuevo", Name: "Salón Oeste", StaffCount: 2},
	)
	subs := memory.NewSubscriptionRepository()
	subs.Put(&entity.Subscription{SalonID: "ent", Tier: tier.Enterprise, Status: entity.SubscriptionStatusActive})
	subs.Put(&entity.Subscription{SalonID: "pro", Tier: tier.Professional, Status: entity.SubscriptionStatusActive})
	subs.Put(&entity.Subscription{SalonID: "baja", Tier: tier.Enterprise, Status: entity.SubscriptionStatusCanceled})
	return smsbudget.NewService(salons, subs, tier.Default(), zerolog.Nop())
}

func TestMonthlyAllowance_PorSalon(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.MonthlyAllowance(ctx, "ent")
	require.NoError(t, err)
	assert.Equal(t, 650, a.Allowance)

	a, err = svc.MonthlyAllowance(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Allowance)

	a, err = svc.MonthlyAllowance(ctx, "baja")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Allowance, "suscripción cancelada no tiene cupo")

	a, err = svc.MonthlyAllowance(ctx, "nuevo")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Allowance)

	_, err = svc.MonthlyAllowance(ctx, "fantasma")
	assert.ErrorIs(t, err, domain.ErrSalonNotFound)
}

func TestShouldSendSMS(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	d, err := svc.ShouldSendSMS(ctx, sms.NotificationAppointmentReminder, 10, "ent")
	require.NoError(t, err)
	assert.True(t, d.SendSMS)
	assert.Equal(t, sms.PriorityHigh, d.Priority)

	d, err = svc.ShouldSendSMS(ctx, sms.NotificationBookingConfirmation, 100, "ent")
	require.NoError(t, err)
	assert.False(t, d.SendSMS, "con 550 de 650 usados la prioridad media pasa a email")
	assert.Equal(t, "email", d.Channel())

	d, err = svc.ShouldSendSMS(ctx, sms.NotificationAppointmentReminder, 100, "pro")
	require.NoError(t, err)
	assert.False(t, d.SendSMS)

	_, err = svc.ShouldSendSMS(ctx, "", 100, "ent")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDecide_PrioridadExplicita(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	// Un recordatorio es high por tipo; con prioridad low explícita va por email.
	d, err := svc.Decide(ctx, "ent", smsbudget.DecisionInput{
		NotificationType: sms.NotificationAppointmentReminder, Priority: "low", Remaining: 600,
	})
	require.NoError(t, err)
	assert.Equal(t, sms.PriorityLow, d.Priority)
	assert.False(t, d.SendSMS)

	d, err = svc.Decide(ctx, "ent", smsbudget.DecisionInput{Priority: "high", Remaining: 1})
	require.NoError(t, err)
	assert.True(t, d.SendSMS, "sin tipo basta con la prioridad")

	_, err = svc.Decide(ctx, "ent", smsbudget.DecisionInput{NotificationType: sms.NotificationMarketing, Priority: "urgent", Remaining: 10})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "priority", ve.Field)
}

func TestOverageCost_PorSalon(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	o, err := svc.OverageCost(ctx, "ent", 1200)
	require.NoError(t, err)
	assert.Equal(t, 550, o.Excess)
	assert.True(t, o.Cost.Equal(decimal.RequireFromString("27.25")), "got %s", o.Cost)

	o, err = svc.OverageCost(ctx, "pro", 1200)
	require.NoError(t, err)
	assert.True(t, o.Cost.IsZero())

	_, err = svc.OverageCost(ctx, "ent", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
