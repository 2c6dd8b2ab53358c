package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")

	// Validación de suscripciones (se rechazan antes de llamar al procesador).
	ErrInvalidTier         = errors.New("plan inválido")
	ErrInvalidBillingCycle = errors.New("ciclo de facturación inválido")
	ErrInvalidAmount       = errors.New("importe inválido")

	// Transiciones de estado no permitidas.
	ErrInvalidUpgrade       = errors.New("el nuevo plan debe ser superior al actual")
	ErrInvalidDowngrade     = errors.New("el nuevo plan debe ser inferior al actual")
	ErrFeatureNotAvailable  = errors.New("funcionalidad no disponible en el plan actual")
	ErrNotOnTrial           = errors.New("la suscripción no está en periodo de prueba")
	ErrSubscriptionNotFound = errors.New("el salón no tiene suscripción")
	ErrSubscriptionCanceled = errors.New("la suscripción está cancelada")
	ErrSalonNotFound        = errors.New("salón no encontrado")

	// Concurrencia e idempotencia.
	ErrConcurrentModification = errors.New("la suscripción fue modificada por otra operación")
	ErrIdempotencyInProgress  = errors.New("ya hay una operación en curso con la misma clave de idempotencia")
	ErrLockTimeout            = errors.New("no se pudo obtener el bloqueo del salón")

	// ErrDrift indica que el procesador confirmó el cambio pero el registro local no se pudo
	// actualizar. Requiere revisión humana; nunca se corrige automáticamente.
	ErrDrift = errors.New("estado local desincronizado con el procesador de pagos")
)

// ValidationError identifica el campo concreto que no superó la validación.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // sentinel específico (ErrInvalidTier, ErrInvalidAmount, ...); opcional
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// Unwrap permite errors.Is tanto contra ErrInvalidInput como contra el sentinel específico.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// NewValidationError construye un error de validación para el campo indicado.
func NewValidationError(field, reason string, sentinel error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: sentinel}
}
