package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

var _ repository.DriftRepository = (*DriftRepo)(nil)

// DriftRepo informes de divergencia sobre PostgreSQL.
type DriftRepo struct {
	q Querier
}

// NewDriftRepository construye el adaptador.
func NewDriftRepository(q Querier) *DriftRepo {
	return &DriftRepo{q: q}
}

// Create persiste el informe; asigna ID si viene vacío.
func (r *DriftRepo) Create(ctx context.Context, d *entity.DriftReport) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Fields == nil {
		d.Fields = []string{}
	}
	query := `
		INSERT INTO drift_reports (id, salon_id, external_subscription_id, operation, fields,
			local_state, remote_state, detail, detected_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.SalonID, d.ExternalSubscriptionID, d.Operation, d.Fields,
		d.Local, d.Remote, d.Detail, d.DetectedAt, d.Resolved,
	)
	if err != nil {
		return fmt.Errorf("insert drift report: %w", err)
	}
	return nil
}

// ListUnresolved informes pendientes de revisión, los más recientes primero.
func (r *DriftRepo) ListUnresolved(ctx context.Context, limit, offset int) ([]*entity.DriftReport, error) {
	query := `
		SELECT id, salon_id, external_subscription_id, operation, fields,
		       local_state, remote_state, detail, detected_at, resolved
		FROM drift_reports WHERE NOT resolved
		ORDER BY detected_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.q.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drift reports: %w", err)
	}
	defer rows.Close()

	var list []*entity.DriftReport
	for rows.Next() {
		var d entity.DriftReport
		if err := rows.Scan(&d.ID, &d.SalonID, &d.ExternalSubscriptionID, &d.Operation, &d.Fields,
			&d.Local, &d.Remote, &d.Detail, &d.DetectedAt, &d.Resolved); err != nil {
			return nil, fmt.Errorf("scan drift report: %w", err)
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}
