package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

var _ repository.SubscriptionRepository = (*SubscriptionRepo)(nil)

// SubscriptionRepo snapshot de suscripción sobre PostgreSQL (tabla subscriptions, una fila por salón).
type SubscriptionRepo struct {
	q Querier
}

// NewSubscriptionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSubscriptionRepository(q Querier) *SubscriptionRepo {
	return &SubscriptionRepo{q: q}
}

const subscriptionColumns = `
	salon_id, tier, billing_cycle, status, current_period_start, current_period_end,
	cancel_at_period_end, trial_ends_at, scheduled_tier, scheduled_cycle, scheduled_effective_date,
	payment_method, external_customer_id, external_subscription_id, version, created_at, updated_at`

// GetBySalonID devuelve (nil, nil) si el salón no tiene suscripción.
func (r *SubscriptionRepo) GetBySalonID(ctx context.Context, salonID string) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE salon_id = $1`
	s, err := scanSubscription(r.q.QueryRow(ctx, query, salonID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

// Save inserta (Version == 0) o actualiza con WHERE version = leída. Cero filas afectadas
// significa que otra escritura ganó: domain.ErrConcurrentModification.
func (r *SubscriptionRepo) Save(ctx context.Context, sub *entity.Subscription) error {
	now := time.Now().UTC()
	schedTier, schedCycle, schedDate := scheduledColumns(sub.ScheduledChange)

	if sub.Version == 0 {
		if sub.CreatedAt.IsZero() {
			sub.CreatedAt = now
		}
		query := `
			INSERT INTO subscriptions (` + subscriptionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)`
		_, err := r.q.Exec(ctx, query,
			sub.SalonID, string(sub.Tier), string(sub.BillingCycle), sub.Status,
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.TrialEndsAt,
			schedTier, schedCycle, schedDate,
			sub.PaymentMethod, sub.ExternalCustomerID, sub.ExternalSubscriptionID,
			sub.CreatedAt, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConcurrentModification
			}
			return fmt.Errorf("insert subscription: %w", err)
		}
		sub.Version = 1
		sub.UpdatedAt = now
		return nil
	}

	query := `
		UPDATE subscriptions SET
			tier = $2, billing_cycle = $3, status = $4,
			current_period_start = $5, current_period_end = $6, cancel_at_period_end = $7, trial_ends_at = $8,
			scheduled_tier = $9, scheduled_cycle = $10, scheduled_effective_date = $11,
			payment_method = $12, external_customer_id = $13, external_subscription_id = $14,
			version = version + 1, updated_at = $15
		WHERE salon_id = $1 AND version = $16`
	cmd, err := r.q.Exec(ctx, query,
		sub.SalonID, string(sub.Tier), string(sub.BillingCycle), sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, sub.TrialEndsAt,
		schedTier, schedCycle, schedDate,
		sub.PaymentMethod, sub.ExternalCustomerID, sub.ExternalSubscriptionID,
		now, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrConcurrentModification
	}
	sub.Version++
	sub.UpdatedAt = now
	return nil
}

// ListLinked snapshots con suscripción externa, ordenados por salón.
func (r *SubscriptionRepo) ListLinked(ctx context.Context, limit, offset int) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE external_subscription_id <> ''
		ORDER BY salon_id LIMIT $1 OFFSET $2`
	return r.list(ctx, "list linked subscriptions", query, limit, offset)
}

// ListDue snapshots con cambio programado vencido o cancelación diferida cumplida.
func (r *SubscriptionRepo) ListDue(ctx context.Context, now time.Time, afterSalonID string, limit int) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status <> 'canceled' AND salon_id > $2
		  AND ((scheduled_effective_date IS NOT NULL AND scheduled_effective_date <= $1)
		    OR (cancel_at_period_end AND current_period_end <= $1))
		ORDER BY salon_id LIMIT $3`
	return r.list(ctx, "list due subscriptions", query, now, afterSalonID, limit)
}

func (r *SubscriptionRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Subscription, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var list []*entity.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*entity.Subscription, error) {
	var (
		s                     entity.Subscription
		slug, cycle           string
		schedTier, schedCycle *string
		schedDate             *time.Time
	)
	err := row.Scan(
		&s.SalonID, &slug, &cycle, &s.Status, &s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.CancelAtPeriodEnd, &s.TrialEndsAt, &schedTier, &schedCycle, &schedDate,
		&s.PaymentMethod, &s.ExternalCustomerID, &s.ExternalSubscriptionID, &s.Version,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Tier = tier.Slug(slug)
	s.BillingCycle = tier.Cycle(cycle)
	if schedTier != nil && schedCycle != nil && schedDate != nil {
		s.ScheduledChange = &entity.ScheduledTierChange{
			NewTier:       tier.Slug(*schedTier),
			BillingCycle:  tier.Cycle(*schedCycle),
			EffectiveDate: schedDate.UTC(),
		}
	}
	return &s, nil
}

func scheduledColumns(sc *entity.ScheduledTierChange) (*string, *string, *time.Time) {
	if sc == nil {
		return nil, nil, nil
	}
	t, c, d := string(sc.NewTier), string(sc.BillingCycle), sc.EffectiveDate
	return &t, &c, &d
}
