package subscription

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
)

// CancelInput cancelación inmediata o al final del periodo.
type CancelInput struct {
	SalonID        string
	Immediately    bool
	IdempotencyKey string
}

// Cancel cancela la suscripción. El snapshot nunca se borra: pasa a canceled.
func (l *Lifecycle) Cancel(ctx context.Context, in CancelInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	return l.run(ctx, OpCancel, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := requireLinked(sub); err != nil {
			return nil, err
		}
		var remote *ports.ProcessorSubscription
		err := l.call(ctx, oc, sub, "cancel_subscription", func(ctx context.Context) error {
			var err error
			if in.Immediately {
				remote, err = l.processor.CancelSubscription(ctx, sub.ExternalSubscriptionID, oc.procKey("cancel"))
			} else {
				remote, err = l.processor.ScheduleCancelAtPeriodEnd(ctx, sub.ExternalSubscriptionID, oc.procKey("cancel_at_period_end"))
			}
			return err
		})
		if err != nil {
			return nil, err
		}

		l.applyRemote(sub, remote)
		if in.Immediately {
			sub.Status = entity.SubscriptionStatusCanceled
			sub.CancelAtPeriodEnd = false
			sub.TrialEndsAt = nil
		} else {
			sub.CancelAtPeriodEnd = true
		}
		sub.ScheduledChange = nil
		if err := l.persist(ctx, oc, sub, remote); err != nil {
			return nil, err
		}
		return l.View(sub), nil
	})
}
