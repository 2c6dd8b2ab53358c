package subscription

import (
	"context"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// CreateInput alta de suscripción.
type CreateInput struct {
	SalonID          string
	Tier             tier.Slug
	BillingCycle     tier.Cycle
	PaymentMethodRef string // opcional; se asocia y se marca por defecto
	Email            string // opcional; por defecto el email del salón
	Trial            bool
	IdempotencyKey   string
}

// Create da de alta la suscripción del salón. Si ya existe una suscripción externa viva la
// devuelve con AlreadyExists sin crear otra ni cambiar su plan: solo se crea una nueva
// cuando la anterior está cancelada.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if err := l.validateTier("tier", in.Tier); err != nil {
		return nil, err
	}
	if err := validateCycle(in.BillingCycle, false); err != nil {
		return nil, err
	}
	priceRef, err := l.priceRef(in.Tier, in.BillingCycle)
	if err != nil {
		return nil, err
	}

	return l.run(ctx, OpCreate, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if sub != nil && sub.IsLive() {
			ev := l.log.Info()
			if sub.Tier != in.Tier || sub.BillingCycle != in.BillingCycle {
				ev = l.log.Warn().Str("requested_tier", string(in.Tier)).Str("requested_cycle", string(in.BillingCycle))
			}
			ev.Str("salon_id", in.SalonID).Str("external_subscription_id", sub.ExternalSubscriptionID).
				Str("tier", string(sub.Tier)).Str("billing_cycle", string(sub.BillingCycle)).
				Msg("el salón ya tiene una suscripción viva; no se aplica el plan pedido")
			out := l.View(sub)
			out.AlreadyExists = true
			return out, nil
		}

		salon, err := l.salons.GetByID(ctx, in.SalonID)
		if err != nil {
			return nil, err
		}
		if salon == nil {
			return nil, domain.ErrSalonNotFound
		}
		email := in.Email
		if email == "" {
			email = salon.Email
		}

		customerID := ""
		if sub != nil {
			customerID = sub.ExternalCustomerID
		}
		if customerID == "" {
			err := l.call(ctx, oc, sub, "get_or_create_customer", func(ctx context.Context) error {
				var err error
				customerID, err = l.processor.GetOrCreateCustomer(ctx, in.SalonID, email, oc.procKey("customer"))
				return err
			})
			if err != nil {
				return nil, err
			}
		}

		if in.PaymentMethodRef != "" {
			err := l.call(ctx, oc, sub, "attach_payment_method", func(ctx context.Context) error {
				return l.processor.AttachPaymentMethod(ctx, customerID, in.PaymentMethodRef, oc.procKey("attach"))
			})
			if err != nil {
				return nil, err
			}
			err = l.call(ctx, oc, sub, "set_default_payment_method", func(ctx context.Context) error {
				return l.processor.SetDefaultPaymentMethod(ctx, customerID, in.PaymentMethodRef, oc.procKey("default"))
			})
			if err != nil {
				return nil, err
			}
		}

		trialDays := 0
		if in.Trial {
			trialDays = l.cfg.TrialDays
		}
		var remote *ports.ProcessorSubscription
		err = l.call(ctx, oc, sub, "create_subscription", func(ctx context.Context) error {
			var err error
			remote, err = l.processor.CreateSubscription(ctx, ports.CreateSubscriptionParams{
				SalonID:        in.SalonID,
				CustomerID:     customerID,
				PriceRef:       priceRef,
				TrialDays:      trialDays,
				IdempotencyKey: oc.procKey("subscription"),
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		// Un salón con la suscripción anterior cancelada conserva su registro (y su versión).
		next := sub
		if next == nil {
			next = &entity.Subscription{SalonID: in.SalonID}
		}
		next.Tier = in.Tier
		next.BillingCycle = in.BillingCycle
		next.ScheduledChange = nil
		next.PaymentMethod = entity.PaymentMethodCard
		next.ExternalCustomerID = customerID
		l.applyRemote(next, remote)

		if err := l.persist(ctx, oc, next, remote); err != nil {
			return nil, err
		}
		return l.View(next), nil
	})
}
