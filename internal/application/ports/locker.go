package ports

import "context"

// TenantLocker serializa las operaciones del ciclo de vida de un mismo salón
// (leer snapshot → llamar al procesador → escribir snapshot).
type TenantLocker interface {
	// Lock bloquea hasta obtener el candado o hasta que ctx expire. unlock es idempotente.
	Lock(ctx context.Context, salonID string) (unlock func(), err error)
}
