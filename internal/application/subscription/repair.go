package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
)

// Get devuelve la vista pública de la suscripción del salón.
func (l *Lifecycle) Get(ctx context.Context, salonID string) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(salonID); err != nil {
		return nil, err
	}
	sub, err := l.subs.GetBySalonID(ctx, salonID)
	if err != nil {
		return nil, fmt.Errorf("subscription: leer snapshot: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return l.View(sub), nil
}

// RebuildFromProcessor sobrescribe el snapshot con el estado del procesador. Es una reparación
// manual tras revisar un DriftReport; nunca se ejecuta sola.
func (l *Lifecycle) RebuildFromProcessor(ctx context.Context, salonID string) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(salonID); err != nil {
		return nil, err
	}
	oc := opContext{op: OpRebuild, salonID: salonID}
	out, err := l.locked(ctx, oc, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if sub == nil || sub.ExternalSubscriptionID == "" {
			return nil, domain.ErrSubscriptionNotFound
		}
		var remote *ports.ProcessorSubscription
		err := l.call(ctx, oc, sub, "get_subscription", func(ctx context.Context) error {
			var err error
			remote, err = l.processor.GetSubscription(ctx, sub.ExternalSubscriptionID)
			return err
		})
		if err != nil {
			return nil, err
		}
		key, ok := l.prices.Resolve(remote.PriceRef)
		if !ok {
			return nil, fmt.Errorf("subscription: precio %q del procesador sin plan asociado", remote.PriceRef)
		}

		before := summarize(sub)
		sub.Tier = key.Tier
		sub.BillingCycle = key.Cycle
		l.applyRemote(sub, remote)
		if sub.ScheduledChange != nil && l.catalog.Compare(sub.ScheduledChange.NewTier, sub.Tier) >= 0 {
			sub.ScheduledChange = nil
		}
		if err := l.subs.Save(ctx, sub); err != nil {
			return nil, fmt.Errorf("subscription: guardar snapshot reconstruido: %w", err)
		}
		l.log.Warn().Str("salon_id", salonID).Str("antes", before).Str("despues", summarize(sub)).
			Msg("snapshot reconstruido desde el procesador de pagos")
		return l.View(sub), nil
	})
	return out, err
}

// ApplyScheduledChange completa lo que quedó programado para el final del periodo: la bajada
// de plan diferida o la cancelación. Devuelve false si no había nada vencido.
func (l *Lifecycle) ApplyScheduledChange(ctx context.Context, salonID string, now time.Time) (bool, error) {
	applied := false
	_, err := l.locked(ctx, opContext{op: OpApplySchedule, salonID: salonID}, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if sub == nil || sub.Status == entity.SubscriptionStatusCanceled {
			return nil, nil
		}
		if sc := sub.ScheduledChange; sc != nil && !now.Before(sc.EffectiveDate) {
			// La clave depende del cambio programado, no de la petición: el job puede repetirse.
			oc.key = fmt.Sprintf("%s-%s-%d", sc.NewTier, sc.BillingCycle, sc.EffectiveDate.Unix())
			remote, err := l.swapPrice(ctx, oc, sub, sc.NewTier, sc.BillingCycle, ports.ProrationNone)
			if err != nil {
				return nil, err
			}
			sub.Tier = sc.NewTier
			sub.BillingCycle = sc.BillingCycle
			sub.ScheduledChange = nil
			l.applyRemote(sub, remote)
			if err := l.persist(ctx, oc, sub, remote); err != nil {
				return nil, err
			}
			applied = true
			l.log.Info().Str("salon_id", salonID).Str("tier", string(sub.Tier)).Msg("bajada de plan programada aplicada")
			return nil, nil
		}

		if sub.CancelAtPeriodEnd && !now.Before(sub.CurrentPeriodEnd) {
			// El procesador cancela por su cuenta al final del periodo; solo se refleja cuando lo confirma.
			var remote *ports.ProcessorSubscription
			err := l.call(ctx, oc, sub, "get_subscription", func(ctx context.Context) error {
				var err error
				remote, err = l.processor.GetSubscription(ctx, sub.ExternalSubscriptionID)
				return err
			})
			if err != nil {
				return nil, err
			}
			if MapStatus(remote.Status) != entity.SubscriptionStatusCanceled {
				l.log.Debug().Str("salon_id", salonID).Msg("cancelación al final del periodo aún no confirmada por el procesador")
				return nil, nil
			}
			l.applyRemote(sub, remote)
			sub.CancelAtPeriodEnd = false
			if err := l.persist(ctx, oc, sub, remote); err != nil {
				return nil, err
			}
			applied = true
			l.log.Info().Str("salon_id", salonID).Msg("cancelación al final del periodo aplicada")
		}
		return nil, nil
	})
	return applied, err
}

// ListDrift divergencias pendientes de revisión, de la más reciente a la más antigua.
func (l *Lifecycle) ListDrift(ctx context.Context, page dto.PageRequest) ([]dto.DriftReportResponse, error) {
	page.DefaultPage()
	reports, err := l.drift.ListUnresolved(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]dto.DriftReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, dto.DriftReportResponse{
			ID:                     r.ID,
			SalonID:                r.SalonID,
			ExternalSubscriptionID: r.ExternalSubscriptionID,
			Operation:              r.Operation,
			Fields:                 r.Fields,
			Local:                  r.Local,
			Remote:                 r.Remote,
			Detail:                 r.Detail,
			DetectedAt:             r.DetectedAt,
		})
	}
	return out, nil
}
