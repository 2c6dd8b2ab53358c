package entity

import "time"

// DriftReport registra una divergencia entre el snapshot local y el procesador de pagos.
// Se revisa manualmente: corregirla sola podría mover dinero sin supervisión.
type DriftReport struct {
	ID                     string
	SalonID                string
	ExternalSubscriptionID string
	Operation              string   // operación del ciclo de vida o "reconcile"
	Fields                 []string // campos que difieren (tier, status, ...)
	Local                  string   // resumen del estado local
	Remote                 string   // resumen del estado en el procesador
	Detail                 string
	DetectedAt             time.Time
	Resolved               bool
}
