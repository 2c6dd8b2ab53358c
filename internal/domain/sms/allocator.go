// Package sms calcula el cupo mensual de SMS, el coste de excedentes y la política de
// envío por prioridad. Funciones puras sobre el catálogo de planes.
package sms

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// Priority prioridad de una notificación.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Tipos de notificación que emite el despachador (fuera de este servicio).
const (
	NotificationAppointmentReminder = "appointment_reminder"
	NotificationBookingChange       = "booking_change"
	NotificationBookingConfirmation = "booking_confirmation"
	NotificationWaitlistOffer       = "waitlist_offer"
	NotificationMarketing           = "marketing"
	NotificationReviewRequest       = "review_request"
	NotificationBirthday            = "birthday"
)

// mediumThrottlePercent a partir de este consumo (% del cupo) los mensajes de prioridad media
// dejan de usar SMS; el último tramo queda reservado a los de prioridad alta.
const mediumThrottlePercent = 80

var priorities = map[string]Priority{
	NotificationAppointmentReminder: PriorityHigh,
	NotificationBookingChange:       PriorityHigh,
	NotificationBookingConfirmation: PriorityMedium,
	NotificationWaitlistOffer:       PriorityMedium,
	NotificationMarketing:           PriorityLow,
	NotificationReviewRequest:       PriorityLow,
	NotificationBirthday:            PriorityLow,
}

// PriorityFor devuelve la prioridad del tipo de notificación; los tipos desconocidos son low.
func PriorityFor(notificationType string) Priority {
	if p, ok := priorities[notificationType]; ok {
		return p
	}
	return PriorityLow
}

// ParsePriority acepta "high", "medium" o "low".
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s), true
	}
	return "", false
}

// MonthlyAllowance cupo mensual de SMS del plan para la plantilla indicada.
// Solo enterprise incluye SMS: base + (plantilla-5)*extra por persona adicional.
func MonthlyAllowance(catalog *tier.Catalog, slug tier.Slug, staffCount int) int {
	d, ok := catalog.TierOf(slug)
	if !ok || d.Limits.SMSPerMonth <= 0 {
		return 0
	}
	extra := staffCount - tier.SMSBaseStaff
	if extra < 0 {
		extra = 0
	}
	return d.Limits.SMSPerMonth + extra*d.Limits.SMSPerAdditionalStaff
}

// OverageCost coste de los SMS consumidos por encima del cupo. El excedente se reparte por
// tramos en orden: el primero hasta su ancho y el resto en el siguiente.
func OverageCost(used, allowance int, bands []tier.OverageBand) decimal.Decimal {
	if used <= allowance || len(bands) == 0 {
		return decimal.Zero
	}
	remaining := used - allowance
	total := decimal.Zero
	for i, b := range bands {
		if remaining <= 0 {
			break
		}
		units := remaining
		if w := b.Width(); w != tier.Unlimited && i < len(bands)-1 && units > w {
			units = w
		}
		total = total.Add(b.PricePerUnit.Mul(decimal.NewFromInt(int64(units))))
		remaining -= units
	}
	return total
}

// ShouldSend decide si una notificación puede consumir SMS.
//   - Solo enterprise con saldo positivo.
//   - high: siempre que quede saldo.
//   - medium: mientras el consumo acumulado sea < 80 % del cupo.
//   - low: nunca (solo email).
func ShouldSend(priority Priority, remaining, allowance int, slug tier.Slug) bool {
	if slug != tier.Enterprise || remaining <= 0 {
		return false
	}
	switch priority {
	case PriorityHigh:
		return true
	case PriorityMedium:
		used := allowance - remaining
		return used*100 < allowance*mediumThrottlePercent
	default:
		return false
	}
}
