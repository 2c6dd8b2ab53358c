package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
)

// ReconcileSource etiqueta de las divergencias detectadas por la conciliación.
const ReconcileSource = "reconcile"

// ReconcileResult resumen de una pasada.
type ReconcileResult struct {
	Checked int
	Drifted int
	Failed  int
}

// ApplyResult resumen de la aplicación de cambios programados.
type ApplyResult struct {
	Due     int
	Applied int
	Failed  int
}

// Reconciler compara periódicamente los snapshots con el procesador. Solo detecta y
// registra: las correcciones las decide una persona (RebuildFromProcessor).
type Reconciler struct {
	subs        repository.SubscriptionRepository
	drift       repository.DriftRepository
	processor   ports.PaymentProcessor
	prices      *ports.PriceTable
	lifecycle   *Lifecycle
	log         zerolog.Logger
	now         func() time.Time
	timeout     time.Duration
	concurrency int
	pageSize    int
}

// NewReconciler construye el conciliador reutilizando las dependencias del ciclo de vida.
func NewReconciler(l *Lifecycle, concurrency, pageSize int) *Reconciler {
	if concurrency <= 0 {
		concurrency = 4
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Reconciler{
		subs:        l.subs,
		drift:       l.drift,
		processor:   l.processor,
		prices:      l.prices,
		lifecycle:   l,
		log:         l.log.With().Str("component", "reconciler").Logger(),
		now:         l.now,
		timeout:     l.cfg.ProcessorTimeout,
		concurrency: concurrency,
		pageSize:    pageSize,
	}
}

// Run recorre todos los snapshots enlazados y registra cada divergencia.
func (r *Reconciler) Run(ctx context.Context) (ReconcileResult, error) {
	var (
		mu  sync.Mutex
		res ReconcileResult
	)
	for offset := 0; ; offset += r.pageSize {
		batch, err := r.subs.ListLinked(ctx, r.pageSize, offset)
		if err != nil {
			return res, fmt.Errorf("reconcile: listar suscripciones: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, sub := range batch {
			g.Go(func() error {
				drifted, err := r.check(gctx, sub)
				mu.Lock()
				defer mu.Unlock()
				res.Checked++
				switch {
				case err != nil:
					res.Failed++
					r.log.Warn().Err(err).Str("salon_id", sub.SalonID).Msg("no se pudo conciliar la suscripción")
				case drifted:
					res.Drifted++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if len(batch) < r.pageSize {
			break
		}
	}
	r.log.Info().Int("checked", res.Checked).Int("drifted", res.Drifted).Int("failed", res.Failed).
		Msg("conciliación completada")
	return res, nil
}

func (r *Reconciler) check(ctx context.Context, sub *entity.Subscription) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	remote, err := r.processor.GetSubscription(cctx, sub.ExternalSubscriptionID)
	if err != nil {
		return false, err
	}
	fields := Diff(sub, remote, r.prices)
	if len(fields) == 0 {
		return false, nil
	}
	recordDrift(ctx, r.drift, r.log, r.now, &entity.DriftReport{
		SalonID:                sub.SalonID,
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		Operation:              ReconcileSource,
		Fields:                 fields,
		Local:                  summarize(sub),
		Remote:                 summarizeRemote(r.prices, remote),
		Detail:                 "divergencia detectada por la conciliación",
	}, ReconcileSource)
	return true, nil
}

// Diff devuelve los campos en los que el snapshot difiere del procesador.
func Diff(sub *entity.Subscription, remote *ports.ProcessorSubscription, prices *ports.PriceTable) []string {
	var fields []string
	key, ok := prices.Resolve(remote.PriceRef)
	if !ok {
		fields = append(fields, "price")
	} else {
		if key.Tier != sub.Tier {
			fields = append(fields, "tier")
		}
		if key.Cycle != sub.BillingCycle {
			fields = append(fields, "billing_cycle")
		}
	}
	if MapStatus(remote.Status) != sub.Status {
		fields = append(fields, "status")
	}
	if !remote.CurrentPeriodEnd.IsZero() && !remote.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd) {
		fields = append(fields, "current_period_end")
	}
	if remote.CancelAtPeriodEnd != sub.CancelAtPeriodEnd {
		fields = append(fields, "cancel_at_period_end")
	}
	return fields
}

// ApplyDue aplica los cambios programados y las cancelaciones diferidas vencidas.
func (r *Reconciler) ApplyDue(ctx context.Context, now time.Time) (ApplyResult, error) {
	var res ApplyResult
	after := ""
	for {
		due, err := r.subs.ListDue(ctx, now, after, r.pageSize)
		if err != nil {
			return res, fmt.Errorf("reconcile: listar cambios programados: %w", err)
		}
		res.Due += len(due)
		for _, sub := range due {
			after = sub.SalonID
			applied, err := r.lifecycle.ApplyScheduledChange(ctx, sub.SalonID, now)
			switch {
			case err != nil:
				res.Failed++
				r.log.Error().Err(err).Str("salon_id", sub.SalonID).Msg("no se pudo aplicar el cambio programado")
			case applied:
				res.Applied++
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if len(due) < r.pageSize {
			break
		}
	}
	r.log.Info().Int("due", res.Due).Int("applied", res.Applied).Int("failed", res.Failed).
		Msg("cambios programados procesados")
	return res, nil
}
