package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
)

// SubscriptionRepository define el puerto de persistencia del snapshot de suscripción (DIP).
// La implementación vive en infrastructure.
type SubscriptionRepository interface {
	// GetBySalonID devuelve (nil, nil) si el salón no tiene suscripción.
	GetBySalonID(ctx context.Context, salonID string) (*entity.Subscription, error)
	// Save inserta (Version == 0) o actualiza comprobando la versión leída. Si otra escritura
	// ganó la carrera devuelve domain.ErrConcurrentModification. En éxito incrementa sub.Version.
	Save(ctx context.Context, sub *entity.Subscription) error
	// ListLinked lista snapshots con suscripción externa, para la conciliación.
	ListLinked(ctx context.Context, limit, offset int) ([]*entity.Subscription, error)
	// ListDue lista snapshots con un cambio programado o una cancelación al final del periodo
	// que ya debería haberse aplicado en now, ordenados por salón y a partir de afterSalonID
	// (exclusivo; vacío desde el principio).
	ListDue(ctx context.Context, now time.Time, afterSalonID string, limit int) ([]*entity.Subscription, error)
}
