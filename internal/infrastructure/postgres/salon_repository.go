package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

var _ repository.SalonRepository = (*SalonRepo)(nil)

// SalonRepo lectura de salones sobre PostgreSQL. La tabla salons la mantiene el servicio de
// cuentas; aquí solo se consulta.
type SalonRepo struct {
	q Querier
}

// NewSalonRepository construye el adaptador.
func NewSalonRepository(q Querier) *SalonRepo {
	return &SalonRepo{q: q}
}

// GetByID obtiene un salón con su plantilla activa. Devuelve (nil, nil) si no existe.
func (r *SalonRepo) GetByID(ctx context.Context, id string) (*entity.Salon, error) {
	query := `
		SELECT s.id, s.name, s.email, s.status, s.created_at, s.updated_at,
		       (SELECT count(*) FROM salon_staff st WHERE st.salon_id = s.id AND st.active)
		FROM salons s WHERE s.id = $1`
	var s entity.Salon
	err := r.q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Email, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.StaffCount,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get salon: %w", err)
	}
	return &s, nil
}
