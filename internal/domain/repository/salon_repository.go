package repository

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
)

// SalonRepository puerto de lectura de salones.
type SalonRepository interface {
	// GetByID devuelve (nil, nil) si el salón no existe.
	GetByID(ctx context.Context, id string) (*entity.Salon, error)
}
