package subscription

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// ConvertTrialInput fin anticipado de la prueba. Tier y ciclo vacíos conservan los actuales.
type ConvertTrialInput struct {
	SalonID        string
	SelectedTier   tier.Slug
	BillingCycle   tier.Cycle
	IdempotencyKey string
}

// ConvertTrialToPaid termina la prueba ahora y activa la suscripción de pago.
func (l *Lifecycle) ConvertTrialToPaid(ctx context.Context, in ConvertTrialInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if in.SelectedTier != "" {
		if err := l.validateTier("tier", in.SelectedTier); err != nil {
			return nil, err
		}
	}
	if err := validateCycle(in.BillingCycle, true); err != nil {
		return nil, err
	}

	return l.run(ctx, OpConvertTrial, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := requireLinked(sub); err != nil {
			return nil, err
		}
		if sub.Status != entity.SubscriptionStatusTrial {
			return nil, domain.ErrNotOnTrial
		}
		slug, cycle := sub.Tier, sub.BillingCycle
		if in.SelectedTier != "" {
			slug = in.SelectedTier
		}
		if in.BillingCycle != "" {
			cycle = in.BillingCycle
		}
		priceRef := ""
		if slug != sub.Tier || cycle != sub.BillingCycle {
			ref, err := l.priceRef(slug, cycle)
			if err != nil {
				return nil, err
			}
			priceRef = ref
		}

		var remote *ports.ProcessorSubscription
		err := l.call(ctx, oc, sub, "end_trial_now", func(ctx context.Context) error {
			var err error
			remote, err = l.processor.EndTrialNow(ctx, ports.EndTrialParams{
				SubscriptionID: sub.ExternalSubscriptionID,
				PriceRef:       priceRef,
				IdempotencyKey: oc.procKey("end_trial"),
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		sub.Tier = slug
		sub.BillingCycle = cycle
		l.applyRemote(sub, remote)
		sub.TrialEndsAt = nil
		if sub.Status == entity.SubscriptionStatusTrial {
			sub.Status = entity.SubscriptionStatusActive
		}
		if err := l.persist(ctx, oc, sub, remote); err != nil {
			return nil, err
		}
		return l.View(sub), nil
	})
}
