package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Salones-api/pkg/config"
)

// testPool abre la base de datos de TEST_DATABASE_URL (con las migraciones aplicadas) o
// salta el test si no está definida.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	pool, err := postgres.NewPool(t.Context(), config.DBConfig{DatabaseURL: url})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedSalon(t *testing.T, pool *pgxpool.Pool, staff int) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO salons (id, name, email, status, created_at, updated_at)
		VALUES ($1, 'Salón test', 'test@salon.es', 'active', now(), now())`, id)
	require.NoError(t, err)
	for range staff {
		_, err := pool.Exec(ctx, `INSERT INTO salon_staff (id, salon_id, active) VALUES ($1, $2, true)`, uuid.NewString(), id)
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM subscriptions WHERE salon_id = $1`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM drift_reports WHERE salon_id = $1`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM salon_staff WHERE salon_id = $1`, id)
		_, _ = pool.Exec(ctx, `DELETE FROM salons WHERE id = $1`, id)
	})
	return id
}

func TestSubscriptionRepo_ControlDeVersion(t *testing.T) {
	pool := testPool(t)
	salonID := seedSalon(t, pool, 0)
	repo := postgres.NewSubscriptionRepository(pool)
	ctx := t.Context()

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := &entity.Subscription{
		SalonID: salonID, Tier: tier.Professional, BillingCycle: tier.Monthly,
		Status: entity.SubscriptionStatusActive, CurrentPeriodStart: start, CurrentPeriodEnd: start.AddDate(0, 1, 0),
		PaymentMethod: entity.PaymentMethodCard, ExternalCustomerID: "cus_1", ExternalSubscriptionID: "sub_1",
	}
	require.NoError(t, repo.Save(ctx, sub))
	assert.Equal(t, int64(1), sub.Version)

	dup := *sub
	dup.Version = 0
	assert.ErrorIs(t, repo.Save(ctx, &dup), domain.ErrConcurrentModification)

	a, err := repo.GetBySalonID(ctx, salonID)
	require.NoError(t, err)
	b, err := repo.GetBySalonID(ctx, salonID)
	require.NoError(t, err)

	a.Tier = tier.Enterprise
	a.ScheduledChange = &entity.ScheduledTierChange{NewTier: tier.Starter, BillingCycle: tier.Monthly, EffectiveDate: a.CurrentPeriodEnd}
	require.NoError(t, repo.Save(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Status = entity.SubscriptionStatusPastDue
	assert.ErrorIs(t, repo.Save(ctx, b), domain.ErrConcurrentModification)

	got, err := repo.GetBySalonID(ctx, salonID)
	require.NoError(t, err)
	assert.Equal(t, tier.Enterprise, got.Tier)
	assert.Equal(t, entity.SubscriptionStatusActive, got.Status)
	require.NotNil(t, got.ScheduledChange)
	assert.Equal(t, tier.Starter, got.ScheduledChange.NewTier)

	due, err := repo.ListDue(ctx, got.CurrentPeriodEnd.Add(time.Minute), "", 100)
	require.NoError(t, err)
	var found bool
	for _, d := range due {
		found = found || d.SalonID == salonID
	}
	assert.True(t, found)
}

func TestSalonRepo_GetByID(t *testing.T) {
	pool := testPool(t)
	salonID := seedSalon(t, pool, 7)
	repo := postgres.NewSalonRepository(pool)

	s, err := repo.GetByID(t.Context(), salonID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 7, s.StaffCount)

	missing, err := repo.GetByID(t.Context(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDriftRepo_CreateYListar(t *testing.T) {
	pool := testPool(t)
	salonID := seedSalon(t, pool, 0)
	repo := postgres.NewDriftRepository(pool)

	r := &entity.DriftReport{SalonID: salonID, Operation: "upgrade", Fields: []string{"tier", "status"},
		DetectedAt: time.Now().UTC()}
	require.NoError(t, repo.Create(t.Context(), r))
	assert.NotEmpty(t, r.ID)

	list, err := repo.ListUnresolved(t.Context(), 50, 0)
	require.NoError(t, err)
	var got *entity.DriftReport
	for _, d := range list {
		if d.ID == r.ID {
			got = d
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, []string{"tier", "status"}, got.Fields)
}
