package subscription

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// ChangeTierInput subida de plan.
type ChangeTierInput struct {
	SalonID        string
	NewTier        tier.Slug
	BillingCycle   tier.Cycle // vacío = conserva el ciclo actual
	IdempotencyKey string
}

// DowngradeInput bajada de plan. Immediate=false la programa para el final del periodo.
type DowngradeInput struct {
	SalonID        string
	NewTier        tier.Slug
	BillingCycle   tier.Cycle
	Immediate      bool
	IdempotencyKey string
}

// Upgrade sube de plan de inmediato cobrando la diferencia prorrateada.
func (l *Lifecycle) Upgrade(ctx context.Context, in ChangeTierInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if err := l.validateTier("tier", in.NewTier); err != nil {
		return nil, err
	}
	if err := validateCycle(in.BillingCycle, true); err != nil {
		return nil, err
	}

	return l.run(ctx, OpUpgrade, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := requireLinked(sub); err != nil {
			return nil, err
		}
		if l.catalog.Compare(in.NewTier, sub.Tier) <= 0 {
			return nil, domain.ErrInvalidUpgrade
		}
		cycle := in.BillingCycle
		if cycle == "" {
			cycle = sub.BillingCycle
		}
		remote, err := l.swapPrice(ctx, oc, sub, in.NewTier, cycle, ports.ProrationAlwaysInvoice)
		if err != nil {
			return nil, err
		}

		sub.Tier = in.NewTier
		sub.BillingCycle = cycle
		sub.ScheduledChange = nil
		l.applyRemote(sub, remote)
		if err := l.persist(ctx, oc, sub, remote); err != nil {
			return nil, err
		}

		out := l.View(sub)
		amount := remote.LatestInvoiceAmountDue
		out.ProratedAmountDue = &amount
		return out, nil
	})
}

// Downgrade baja de plan. Inmediata: cambia el precio sin prorrateo. Diferida: no toca el
// procesador y deja el cambio programado para el final del periodo actual.
func (l *Lifecycle) Downgrade(ctx context.Context, in DowngradeInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if err := l.validateTier("tier", in.NewTier); err != nil {
		return nil, err
	}
	if err := validateCycle(in.BillingCycle, true); err != nil {
		return nil, err
	}

	return l.run(ctx, OpDowngrade, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := requireLinked(sub); err != nil {
			return nil, err
		}
		if l.catalog.Compare(in.NewTier, sub.Tier) >= 0 {
			return nil, domain.ErrInvalidDowngrade
		}
		cycle := in.BillingCycle
		if cycle == "" {
			cycle = sub.BillingCycle
		}
		lost := l.catalog.FeaturesLost(sub.Tier, in.NewTier)

		if !in.Immediate {
			sub.ScheduledChange = &entity.ScheduledTierChange{
				NewTier:       in.NewTier,
				BillingCycle:  cycle,
				EffectiveDate: sub.CurrentPeriodEnd,
			}
			if err := l.persist(ctx, oc, sub, nil); err != nil {
				return nil, err
			}
			out := l.View(sub)
			out.FeaturesLost = lost
			return out, nil
		}

		remote, err := l.swapPrice(ctx, oc, sub, in.NewTier, cycle, ports.ProrationNone)
		if err != nil {
			return nil, err
		}
		sub.Tier = in.NewTier
		sub.BillingCycle = cycle
		sub.ScheduledChange = nil
		l.applyRemote(sub, remote)
		if err := l.persist(ctx, oc, sub, remote); err != nil {
			return nil, err
		}
		out := l.View(sub)
		out.FeaturesLost = lost
		return out, nil
	})
}

func (l *Lifecycle) swapPrice(ctx context.Context, oc opContext, sub *entity.Subscription, slug tier.Slug, cycle tier.Cycle, proration ports.Proration) (*ports.ProcessorSubscription, error) {
	ref, err := l.priceRef(slug, cycle)
	if err != nil {
		return nil, err
	}
	var remote *ports.ProcessorSubscription
	err = l.call(ctx, oc, sub, "update_subscription_price", func(ctx context.Context) error {
		var err error
		remote, err = l.processor.UpdateSubscriptionPrice(ctx, ports.UpdatePriceParams{
			SubscriptionID: sub.ExternalSubscriptionID,
			PriceRef:       ref,
			Proration:      proration,
			IdempotencyKey: oc.procKey("price"),
		})
		return err
	})
	return remote, err
}
