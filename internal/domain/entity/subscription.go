package entity

import (
	"time"

	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// Estados de la suscripción (deben coincidir con el CHECK de la tabla subscriptions).
const (
	SubscriptionStatusTrial    = "trial"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	// SubscriptionStatusInactive no se persiste: es el estado sintético de un salón sin suscripción.
	SubscriptionStatusInactive = "inactive"
)

// Métodos de pago.
const (
	PaymentMethodCard    = "card"
	PaymentMethodSEPA    = "sepa"
	PaymentMethodInvoice = "invoice"
)

// TrialDays duración del periodo de prueba.
const TrialDays = 14

// ScheduledTierChange cambio de plan diferido al final del periodo (downgrade no inmediato).
type ScheduledTierChange struct {
	NewTier       tier.Slug  `json:"new_tier"`
	BillingCycle  tier.Cycle `json:"billing_cycle"`
	EffectiveDate time.Time  `json:"effective_date"`
}

// Subscription snapshot local de la suscripción de un salón. Solo lo escribe el ciclo de vida
// de suscripciones; el control de acceso y el cupo de SMS lo leen.
type Subscription struct {
	SalonID                string
	Tier                   tier.Slug
	BillingCycle           tier.Cycle
	Status                 string // trial, active, past_due, canceled
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	TrialEndsAt            *time.Time // solo con Status = trial
	ScheduledChange        *ScheduledTierChange
	PaymentMethod          string // card, sepa, invoice
	ExternalCustomerID     string
	ExternalSubscriptionID string
	Version                int64 // control de concurrencia optimista; 0 = aún no persistido
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsEntitled informa si el estado permite usar funcionalidades del plan.
func (s *Subscription) IsEntitled() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrial
}

// IsLive informa si la suscripción externa sigue viva (no cancelada) y puede reutilizarse.
func (s *Subscription) IsLive() bool {
	return s.ExternalSubscriptionID != "" && s.Status != SubscriptionStatusCanceled
}

// InTrialAt informa si el periodo de prueba sigue vigente en el instante indicado.
func (s *Subscription) InTrialAt(now time.Time) bool {
	return s.Status == SubscriptionStatusTrial && s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// Clone copia profunda (los punteros no se comparten).
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.TrialEndsAt != nil {
		t := *s.TrialEndsAt
		c.TrialEndsAt = &t
	}
	if s.ScheduledChange != nil {
		sc := *s.ScheduledChange
		c.ScheduledChange = &sc
	}
	return &c
}
