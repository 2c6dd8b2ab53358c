package entity

import "time"

// Salon representa un salón/tenant del sistema (multi-tenant).
// Este servicio solo lo lee: el email de facturación y la plantilla para el cupo de SMS.
type Salon struct {
	ID         string
	Name       string
	Email      string // email de facturación, se envía al procesador de pagos
	StaffCount int    // personal activo; escala el cupo de SMS en enterprise
	Status     string // active, suspended, inactive
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
