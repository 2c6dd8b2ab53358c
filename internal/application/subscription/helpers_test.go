package subscription_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/fakeprocessor"
	"github.com/jhoicas/Salones-api/internal/infrastructure/memory"
)

type harness struct {
	lc        *subscription.Lifecycle
	subs      *memory.SubscriptionRepository
	salons    *memory.SalonRepository
	drift     *memory.DriftRepository
	processor *fakeprocessor.Processor
	prices    *ports.PriceTable
	catalog   *tier.Catalog
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog := tier.Default()
	prices, err := ports.NewPriceTable(catalog, fakeprocessor.PriceRefs(catalog))
	require.NoError(t, err)

	h := &harness{
		subs:    memory.NewSubscriptionRepository(),
		salons:  memory.NewSalonRepository(entity.Salon{ID: "salon-1", Name: "Salón Centro", Email: "caja@centro.test", StaffCount: 6}),
		drift:   memory.NewDriftRepository(),
		prices:  prices,
		catalog: catalog,
		now:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.processor = fakeprocessor.New(catalog, prices, clock)

	cfg := subscription.DefaultConfig()
	cfg.ProcessorTimeout = time.Second
	h.lc = subscription.NewLifecycle(subscription.Deps{
		Subscriptions: h.subs,
		Salons:        h.salons,
		Drift:         h.drift,
		Processor:     h.processor,
		Prices:        prices,
		Idempotency:   memory.NewIdempotencyStore(),
		Locker:        memory.NewKeyedLocker(),
		Catalog:       catalog,
		Log:           zerolog.Nop(),
		Now:           clock,
	}, cfg)
	return h
}

// subscribe crea una suscripción activa (sin prueba) para el salón de pruebas.
func (h *harness) subscribe(t *testing.T, slug tier.Slug, cycle tier.Cycle) {
	t.Helper()
	_, err := h.lc.Create(t.Context(), subscription.CreateInput{
		SalonID:        "salon-1",
		Tier:           slug,
		BillingCycle:   cycle,
		IdempotencyKey: "alta-" + string(slug),
	})
	require.NoError(t, err)
}

func (h *harness) snapshot(t *testing.T) *entity.Subscription {
	t.Helper()
	sub, err := h.subs.GetBySalonID(t.Context(), "salon-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}
