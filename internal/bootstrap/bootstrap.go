// Package bootstrap construye los servicios de facturación a partir de la configuración.
// Lo comparten la API y el binario de conciliación.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/application/entitlement"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/application/smsbudget"
	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/fakeprocessor"
	"github.com/jhoicas/Salones-api/internal/infrastructure/memory"
	"github.com/jhoicas/Salones-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Salones-api/internal/infrastructure/redisstore"
	"github.com/jhoicas/Salones-api/internal/infrastructure/stripeclient"
	"github.com/jhoicas/Salones-api/pkg/config"
	"github.com/jhoicas/Salones-api/pkg/logger"
)

// Services servicios listos para usar.
type Services struct {
	Catalog    *tier.Catalog
	Prices     *ports.PriceTable
	Lifecycle  *subscription.Lifecycle
	Gate       *entitlement.Gate
	SMS        *smsbudget.Service
	Reconciler *subscription.Reconciler
}

type storage struct {
	subs   repository.SubscriptionRepository
	salons repository.SalonRepository
	drift  repository.DriftRepository
}

// Build conecta almacenamiento, Redis y procesador según cfg. El cierre devuelto libera las
// conexiones abiertas y debe llamarse aunque Build falle a medias (nunca es nil).
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	catalog := tier.Default()
	prices, err := PriceTable(cfg.Payments, catalog)
	if err != nil {
		return nil, cleanup, err
	}

	var st storage
	switch cfg.App.Storage {
	case "memory":
		log.Warn().Msg("almacenamiento en memoria: los datos se pierden al reiniciar")
		st = storage{
			subs: memory.NewSubscriptionRepository(),
			salons: memory.NewSalonRepository(entity.Salon{
				ID: cfg.App.DevSalonID, Name: "Salón de desarrollo", Email: "dev@salones.local",
				StaffCount: tier.SMSBaseStaff, Status: "active",
			}),
			drift: memory.NewDriftRepository(),
		}
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		closers = append(closers, pool.Close)
		st = storage{
			subs:   postgres.NewSubscriptionRepository(pool),
			salons: postgres.NewSalonRepository(pool),
			drift:  postgres.NewDriftRepository(pool),
		}
	}

	var (
		idem   ports.IdempotencyStore = memory.NewIdempotencyStore()
		locker ports.TenantLocker     = memory.NewKeyedLocker()
	)
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Options{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("conexión a Redis: %w", err)
		}
		closers = append(closers, func() { closeRedis(client, log) })
		idem = redisstore.NewIdempotencyStore(client)
		locker = redisstore.NewLocker(client, cfg.Redis.LockTTL, log.Component("locker"))
	} else {
		log.Warn().Msg("REDIS_ADDR vacío: bloqueo e idempotencia locales, solo válido con una instancia")
	}

	var processor ports.PaymentProcessor
	switch cfg.Payments.Provider {
	case "fake":
		log.Warn().Msg("procesador de pagos simulado: no se cobra nada")
		processor = fakeprocessor.New(catalog, prices, time.Now)
	default:
		p, err := stripeclient.New(stripeclient.Config{
			SecretKey:  cfg.Payments.SecretKey,
			Timeout:    cfg.Payments.Timeout,
			RatePerSec: cfg.Payments.RatePerSec,
			RateBurst:  cfg.Payments.RateBurst,
		})
		if err != nil {
			return nil, cleanup, err
		}
		processor = p
	}

	lcCfg, err := LifecycleConfig(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	lc := subscription.NewLifecycle(subscription.Deps{
		Subscriptions: st.subs,
		Salons:        st.salons,
		Drift:         st.drift,
		Processor:     processor,
		Prices:        prices,
		Idempotency:   idem,
		Locker:        locker,
		Catalog:       catalog,
		Log:           log.Component("lifecycle"),
	}, lcCfg)

	return &Services{
		Catalog:    catalog,
		Prices:     prices,
		Lifecycle:  lc,
		Gate:       entitlement.NewGate(st.subs, catalog, log.Component("gate")),
		SMS:        smsbudget.NewService(st.salons, st.subs, catalog, log.Component("sms")),
		Reconciler: subscription.NewReconciler(lc, cfg.Reconcile.Concurrency, cfg.Reconcile.PageSize),
	}, cleanup, nil
}

// PriceTable construye la tabla de precios: la del procesador simulado o las referencias
// STRIPE_PRICE_<TIER>_<CYCLE> de la configuración.
func PriceTable(cfg config.PaymentsConfig, catalog *tier.Catalog) (*ports.PriceTable, error) {
	if cfg.Provider == "fake" {
		return ports.NewPriceTable(catalog, fakeprocessor.PriceRefs(catalog))
	}
	refs := make(map[ports.PriceKey]string, len(cfg.Prices))
	for k, ref := range cfg.Prices {
		slug, cycle, ok := strings.Cut(k, "_")
		if !ok {
			return nil, fmt.Errorf("config: clave de precio inválida %q", k)
		}
		refs[ports.PriceKey{Tier: tier.Slug(slug), Cycle: tier.Cycle(cycle)}] = ref
	}
	return ports.NewPriceTable(catalog, refs)
}

// LifecycleConfig traduce la configuración de facturación.
func LifecycleConfig(cfg *config.Config) (subscription.Config, error) {
	out := subscription.Config{
		ProcessorTimeout:   cfg.Payments.Timeout,
		IdempotencyTTL:     cfg.Redis.IdempotencyTTL,
		TrialDays:          cfg.Billing.TrialDays,
		InvoiceDueDays:     cfg.Billing.InvoiceDueDays,
		InvoiceDescription: cfg.Billing.InvoiceDescription,
	}
	if cfg.Billing.MaxInvoiceAmount != "" {
		limit, err := decimal.NewFromString(cfg.Billing.MaxInvoiceAmount)
		if err != nil {
			return out, fmt.Errorf("config: BILLING_MAX_INVOICE_AMOUNT: %w", err)
		}
		out.MaxInvoiceAmount = limit
	}
	return out, nil
}

func closeRedis(client *redis.Client, log *logger.Logger) {
	if err := client.Close(); err != nil {
		log.Warn().Err(err).Msg("cerrar Redis")
	}
}
