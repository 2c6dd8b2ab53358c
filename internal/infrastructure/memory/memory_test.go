package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/memory"
)

func TestSubscriptionRepository_ControlDeVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSubscriptionRepository()

	sub := &entity.Subscription{SalonID: "s1", Tier: tier.Starter, Status: entity.SubscriptionStatusActive}
	require.NoError(t, repo.Save(ctx, sub))
	assert.Equal(t, int64(1), sub.Version)

	a, err := repo.GetBySalonID(ctx, "s1")
	require.NoError(t, err)
	b, err := repo.GetBySalonID(ctx, "s1")
	require.NoError(t, err)

	a.Tier = tier.Professional
	require.NoError(t, repo.Save(ctx, a))

	b.Tier = tier.Enterprise
	err = repo.Save(ctx, b)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification, "la segunda escritura con versión vieja pierde")

	got, _ := repo.GetBySalonID(ctx, "s1")
	assert.Equal(t, tier.Professional, got.Tier)
}

func TestSubscriptionRepository_InsertarDuplicado(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSubscriptionRepository()
	require.NoError(t, repo.Save(ctx, &entity.Subscription{SalonID: "s1"}))
	assert.ErrorIs(t, repo.Save(ctx, &entity.Subscription{SalonID: "s1"}), domain.ErrConcurrentModification)
}

func TestSubscriptionRepository_FailNextSave(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSubscriptionRepository()
	boom := errors.New("db caída")
	repo.FailNextSave(boom)
	assert.ErrorIs(t, repo.Save(ctx, &entity.Subscription{SalonID: "s1"}), boom)
	assert.NoError(t, repo.Save(ctx, &entity.Subscription{SalonID: "s1"}))
}

func TestSubscriptionRepository_ListDue(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSubscriptionRepository()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	repo.Put(&entity.Subscription{SalonID: "vencido", Status: entity.SubscriptionStatusActive,
		ScheduledChange: &entity.ScheduledTierChange{NewTier: tier.Starter, EffectiveDate: now.Add(-time.Hour)}})
	repo.Put(&entity.Subscription{SalonID: "futuro", Status: entity.SubscriptionStatusActive,
		ScheduledChange: &entity.ScheduledTierChange{NewTier: tier.Starter, EffectiveDate: now.Add(time.Hour)}})
	repo.Put(&entity.Subscription{SalonID: "cancelar", Status: entity.SubscriptionStatusActive,
		CancelAtPeriodEnd: true, CurrentPeriodEnd: now})
	repo.Put(&entity.Subscription{SalonID: "cancelado", Status: entity.SubscriptionStatusCanceled,
		CancelAtPeriodEnd: true, CurrentPeriodEnd: now.Add(-time.Hour)})

	due, err := repo.ListDue(ctx, now, "", 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, s := range due {
		ids = append(ids, s.SalonID)
	}
	assert.Equal(t, []string{"cancelar", "vencido"}, ids)

	due, err = repo.ListDue(ctx, now, "cancelar", 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "vencido", due[0].SalonID)
}

func TestKeyedLocker_Serializa(t *testing.T) {
	l := memory.NewKeyedLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "s1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestKeyedLocker_Timeout(t *testing.T) {
	l := memory.NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "s1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	other, err := l.Lock(context.Background(), "s2")
	require.NoError(t, err, "otro salón no espera")
	other()
}

func TestIdempotencyStore_Flujo(t *testing.T) {
	ctx := context.Background()
	s := memory.NewIdempotencyStore()

	_, started, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, started)

	_, _, err = s.Begin(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)

	require.NoError(t, s.Complete(ctx, "k", []byte(`{"ok":true}`), time.Minute))
	stored, started, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, started)
	assert.JSONEq(t, `{"ok":true}`, string(stored))
}

func TestIdempotencyStore_ReleasePermiteReintentar(t *testing.T) {
	ctx := context.Background()
	s := memory.NewIdempotencyStore()
	_, _, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k"))

	_, started, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, started)
}
