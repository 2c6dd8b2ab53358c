// Package smsbudget expone el cupo de SMS de un salón al despachador de notificaciones.
package smsbudget

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
	"github.com/jhoicas/Salones-api/internal/domain/sms"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/metrics"
)

// Allowance cupo mensual calculado para un salón.
type Allowance struct {
	SalonID    string
	Tier       tier.Slug
	StaffCount int
	Allowance  int
}

// SendDecision canal elegido para una notificación.
type SendDecision struct {
	NotificationType string
	Priority         sms.Priority
	SendSMS          bool
	Allowance        int
	Remaining        int
}

// Overage coste del excedente del mes.
type Overage struct {
	Used      int
	Allowance int
	Excess    int
	Cost      decimal.Decimal
}

// Service combina salón, snapshot y catálogo con la política pura de internal/domain/sms.
type Service struct {
	salons  repository.SalonRepository
	subs    repository.SubscriptionRepository
	catalog *tier.Catalog
	log     zerolog.Logger
}

// NewService construye el servicio.
func NewService(salons repository.SalonRepository, subs repository.SubscriptionRepository, catalog *tier.Catalog, log zerolog.Logger) *Service {
	return &Service{salons: salons, subs: subs, catalog: catalog, log: log}
}

// MonthlyAllowance cupo del mes. Sin suscripción activa el cupo es 0.
func (s *Service) MonthlyAllowance(ctx context.Context, salonID string) (*Allowance, error) {
	salon, err := s.salons.GetByID(ctx, salonID)
	if err != nil {
		return nil, fmt.Errorf("smsbudget: leer salón: %w", err)
	}
	if salon == nil {
		return nil, domain.ErrSalonNotFound
	}
	sub, err := s.subs.GetBySalonID(ctx, salonID)
	if err != nil {
		return nil, fmt.Errorf("smsbudget: leer suscripción: %w", err)
	}
	out := &Allowance{SalonID: salonID, Tier: s.catalog.Lowest(), StaffCount: salon.StaffCount}
	if sub == nil || !sub.IsEntitled() {
		return out, nil
	}
	// El cupo se calcula sobre el plan contratado: la prueba no regala SMS de pago.
	out.Tier = s.catalog.Normalize(sub.Tier)
	out.Allowance = sms.MonthlyAllowance(s.catalog, out.Tier, salon.StaffCount)
	return out, nil
}

// DecisionInput notificación a encaminar. Priority, si llega, sustituye a la prioridad
// asociada al tipo de notificación.
type DecisionInput struct {
	NotificationType string
	Priority         string
	Remaining        int
}

// ShouldSendSMS decide si la notificación va por SMS o solo por email.
func (s *Service) ShouldSendSMS(ctx context.Context, notificationType string, remaining int, salonID string) (*SendDecision, error) {
	return s.Decide(ctx, salonID, DecisionInput{NotificationType: notificationType, Remaining: remaining})
}

// Decide como ShouldSendSMS, aceptando una prioridad explícita.
func (s *Service) Decide(ctx context.Context, salonID string, in DecisionInput) (*SendDecision, error) {
	var p sms.Priority
	switch {
	case in.Priority != "":
		var ok bool
		if p, ok = sms.ParsePriority(in.Priority); !ok {
			return nil, domain.NewValidationError("priority", "debe ser high, medium o low", nil)
		}
	case in.NotificationType == "":
		return nil, domain.NewValidationError("notification_type", "es obligatorio", nil)
	default:
		p = sms.PriorityFor(in.NotificationType)
	}
	a, err := s.MonthlyAllowance(ctx, salonID)
	if err != nil {
		return nil, err
	}
	d := &SendDecision{
		NotificationType: in.NotificationType,
		Priority:         p,
		SendSMS:          a.Allowance > 0 && sms.ShouldSend(p, in.Remaining, a.Allowance, a.Tier),
		Allowance:        a.Allowance,
		Remaining:        in.Remaining,
	}
	metrics.SMSDecisions.WithLabelValues(string(p), d.Channel()).Inc()
	s.log.Debug().Str("salon_id", salonID).Str("type", in.NotificationType).Str("priority", string(p)).
		Int("remaining", in.Remaining).Bool("sms", d.SendSMS).Msg("decisión de envío")
	return d, nil
}

// OverageCost coste de los SMS consumidos por encima del cupo del salón.
func (s *Service) OverageCost(ctx context.Context, salonID string, used int) (*Overage, error) {
	if used < 0 {
		return nil, domain.NewValidationError("used", "no puede ser negativo", nil)
	}
	a, err := s.MonthlyAllowance(ctx, salonID)
	if err != nil {
		return nil, err
	}
	out := &Overage{Used: used, Allowance: a.Allowance, Cost: decimal.Zero}
	if a.Tier != tier.Enterprise {
		return out, nil
	}
	def, _ := s.catalog.TierOf(a.Tier)
	if used > a.Allowance {
		out.Excess = used - a.Allowance
	}
	out.Cost = sms.OverageCost(used, a.Allowance, def.SMSOverage)
	return out, nil
}

// Channel devuelve "sms" o "email" para la decisión.
func (d *SendDecision) Channel() string {
	if d.SendSMS {
		return "sms"
	}
	return "email"
}
