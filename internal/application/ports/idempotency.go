package ports

import (
	"context"
	"time"
)

// IdempotencyStore recuerda el resultado de cada operación de facturación por clave.
//
// Flujo: Begin → (operación) → Complete, o Release si la operación falla para que el
// cliente pueda reintentar con la misma clave.
type IdempotencyStore interface {
	// Begin reserva la clave. Si ya hay un resultado guardado lo devuelve con started=false.
	// Si otra petición con la misma clave sigue en curso devuelve domain.ErrIdempotencyInProgress.
	Begin(ctx context.Context, key string, ttl time.Duration) (stored []byte, started bool, err error)
	// Complete guarda el resultado final de la operación.
	Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error
	// Release libera una clave reservada sin resultado.
	Release(ctx context.Context, key string) error
}
