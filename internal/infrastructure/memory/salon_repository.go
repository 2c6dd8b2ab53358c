package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

// SalonRepository salones en memoria.
type SalonRepository struct {
	mu    sync.RWMutex
	items map[string]entity.Salon
}

var _ repository.SalonRepository = (*SalonRepository)(nil)

// NewSalonRepository crea el repositorio con los salones indicados.
func NewSalonRepository(salons ...entity.Salon) *SalonRepository {
	r := &SalonRepository{items: make(map[string]entity.Salon, len(salons))}
	for _, s := range salons {
		r.items[s.ID] = s
	}
	return r
}

// GetByID devuelve (nil, nil) si no existe.
func (r *SalonRepository) GetByID(_ context.Context, id string) (*entity.Salon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Upsert crea o reemplaza un salón.
func (r *SalonRepository) Upsert(s entity.Salon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = s
}
