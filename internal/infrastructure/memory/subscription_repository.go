// Package memory implementa los puertos de persistencia, bloqueo e idempotencia en memoria.
// Se usa en desarrollo (APP_STORAGE=memory) y en los tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

// SubscriptionRepository snapshots en memoria con control de versión.
type SubscriptionRepository struct {
	mu       sync.Mutex
	items    map[string]*entity.Subscription
	failNext error
	saves    int
}

var _ repository.SubscriptionRepository = (*SubscriptionRepository)(nil)

// NewSubscriptionRepository crea un repositorio vacío.
func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{items: make(map[string]*entity.Subscription)}
}

// GetBySalonID devuelve una copia del snapshot o (nil, nil).
func (r *SubscriptionRepository) GetBySalonID(_ context.Context, salonID string) (*entity.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[salonID].Clone(), nil
}

// Save inserta o actualiza comprobando la versión.
func (r *SubscriptionRepository) Save(_ context.Context, sub *entity.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	cur, exists := r.items[sub.SalonID]
	switch {
	case sub.Version == 0 && exists:
		return domain.ErrConcurrentModification
	case sub.Version != 0 && (!exists || cur.Version != sub.Version):
		return domain.ErrConcurrentModification
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	sub.Version++
	r.items[sub.SalonID] = sub.Clone()
	r.saves++
	return nil
}

// ListLinked snapshots con suscripción externa ordenados por salón.
func (r *SubscriptionRepository) ListLinked(_ context.Context, limit, offset int) ([]*entity.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Subscription
	for _, s := range r.sorted() {
		if s.ExternalSubscriptionID != "" {
			out = append(out, s.Clone())
		}
	}
	return page(out, limit, offset), nil
}

// ListDue snapshots con un cambio programado vencido o una cancelación diferida ya cumplida.
func (r *SubscriptionRepository) ListDue(_ context.Context, now time.Time, afterSalonID string, limit int) ([]*entity.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Subscription
	for _, s := range r.sorted() {
		if s.SalonID <= afterSalonID || s.Status == entity.SubscriptionStatusCanceled {
			continue
		}
		due := s.ScheduledChange != nil && !now.Before(s.ScheduledChange.EffectiveDate)
		due = due || (s.CancelAtPeriodEnd && !now.Before(s.CurrentPeriodEnd))
		if due {
			out = append(out, s.Clone())
		}
	}
	return page(out, limit, 0), nil
}

// FailNextSave hace que el siguiente Save devuelva err (simula una caída de la base de datos).
func (r *SubscriptionRepository) FailNextSave(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// Put guarda un snapshot tal cual, sin control de versión. Solo para preparar escenarios.
func (r *SubscriptionRepository) Put(sub *entity.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := sub.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	r.items[sub.SalonID] = c
}

// Saves número de escrituras correctas.
func (r *SubscriptionRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *SubscriptionRepository) sorted() []*entity.Subscription {
	out := make([]*entity.Subscription, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SalonID < out[j].SalonID })
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
