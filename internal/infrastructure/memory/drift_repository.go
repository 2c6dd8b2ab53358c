package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

// DriftRepository divergencias en memoria.
type DriftRepository struct {
	mu      sync.Mutex
	reports []entity.DriftReport
}

var _ repository.DriftRepository = (*DriftRepository)(nil)

// NewDriftRepository crea un repositorio vacío.
func NewDriftRepository() *DriftRepository {
	return &DriftRepository{}
}

// Create guarda la divergencia asignando ID si falta.
func (r *DriftRepository) Create(_ context.Context, report *entity.DriftReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	c := *report
	c.Fields = append([]string(nil), report.Fields...)
	r.reports = append(r.reports, c)
	return nil
}

// ListUnresolved divergencias pendientes en orden de detección.
func (r *DriftRepository) ListUnresolved(_ context.Context, limit, offset int) ([]*entity.DriftReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DriftReport
	for i := range r.reports {
		if !r.reports[i].Resolved {
			c := r.reports[i]
			out = append(out, &c)
		}
	}
	return page(out, limit, offset), nil
}
