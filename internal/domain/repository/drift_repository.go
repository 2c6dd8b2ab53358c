package repository

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
)

// DriftRepository persiste las divergencias detectadas para revisión manual.
type DriftRepository interface {
	Create(ctx context.Context, report *entity.DriftReport) error
	ListUnresolved(ctx context.Context, limit, offset int) ([]*entity.DriftReport, error)
}
