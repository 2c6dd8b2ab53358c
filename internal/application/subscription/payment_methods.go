package subscription

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// Tipos de método de pago alternativo.
const PaymentKindSEPA = "sepa"

// SEPADetails datos del mandato SEPA.
type SEPADetails struct {
	IBAN          string
	AccountHolder string
	Email         string
}

// SetupPaymentInput alta de un método de pago alternativo.
type SetupPaymentInput struct {
	SalonID        string
	Kind           string // solo "sepa"
	Details        SEPADetails
	IdempotencyKey string
}

// ManualInvoiceInput factura manual (clientes enterprise con pago por factura).
type ManualInvoiceInput struct {
	SalonID        string
	Amount         decimal.Decimal
	Description    string
	DueInDays      int // 0 = valor por defecto (14)
	IdempotencyKey string
}

// SetupAlternatePaymentMethod registra una domiciliación SEPA. Solo enterprise.
func (l *Lifecycle) SetupAlternatePaymentMethod(ctx context.Context, in SetupPaymentInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if in.Kind != PaymentKindSEPA {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("método de pago no soportado %q", in.Kind), nil)
	}
	iban := normalizeIBAN(in.Details.IBAN)
	if err := validateIBAN(iban); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Details.AccountHolder) == "" {
		return nil, domain.NewValidationError("account_holder", "es obligatorio", nil)
	}

	return l.run(ctx, OpSetupSEPA, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := l.requireFeature(sub, tier.FeatureSEPADirectDebit); err != nil {
			return nil, err
		}
		customerID, err := l.ensureCustomer(ctx, oc, sub, in.Details.Email)
		if err != nil {
			return nil, err
		}

		var setup *ports.SetupIntentResult
		err = l.call(ctx, oc, sub, "create_setup_intent", func(ctx context.Context) error {
			var err error
			setup, err = l.processor.CreateSetupIntent(ctx, ports.SetupIntentParams{
				CustomerID:     customerID,
				MethodKind:     "sepa_debit",
				IBAN:           iban,
				AccountHolder:  strings.TrimSpace(in.Details.AccountHolder),
				Email:          in.Details.Email,
				IdempotencyKey: oc.procKey("setup_intent"),
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		sub.ExternalCustomerID = customerID
		sub.PaymentMethod = entity.PaymentMethodSEPA
		if err := l.persistSide(ctx, oc, sub, "setup_intent="+setup.ID); err != nil {
			return nil, err
		}
		out := l.View(sub)
		out.ClientSecret = setup.ClientSecret
		out.SetupStatus = setup.Status
		return out, nil
	})
}

// CreateManualInvoice emite y envía una factura manual. Solo enterprise.
func (l *Lifecycle) CreateManualInvoice(ctx context.Context, in ManualInvoiceInput) (*dto.SubscriptionResponse, error) {
	if err := validateSalon(in.SalonID); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "debe ser mayor que cero", domain.ErrInvalidAmount)
	}
	if in.Amount.GreaterThan(l.cfg.MaxInvoiceAmount) {
		return nil, domain.NewValidationError("amount", "supera el importe máximo permitido", domain.ErrInvalidAmount)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, domain.NewValidationError("amount", "admite como máximo 2 decimales", domain.ErrInvalidAmount)
	}
	due := in.DueInDays
	if due == 0 {
		due = l.cfg.InvoiceDueDays
	}
	if due < 1 || due > 365 {
		return nil, domain.NewValidationError("due_in_days", "debe estar entre 1 y 365", nil)
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		desc = l.cfg.InvoiceDescription
	}

	return l.run(ctx, OpManualInvoice, in.SalonID, in.IdempotencyKey, func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error) {
		if err := l.requireFeature(sub, tier.FeatureInvoiceBilling); err != nil {
			return nil, err
		}
		customerID, err := l.ensureCustomer(ctx, oc, sub, "")
		if err != nil {
			return nil, err
		}

		var inv *ports.InvoiceResult
		err = l.call(ctx, oc, sub, "create_and_send_invoice", func(ctx context.Context) error {
			var err error
			inv, err = l.processor.CreateAndSendInvoice(ctx, ports.InvoiceParams{
				CustomerID:     customerID,
				Amount:         in.Amount,
				Description:    desc,
				DaysUntilDue:   due,
				IdempotencyKey: oc.procKey("invoice"),
			})
			return err
		})
		if err != nil {
			return nil, err
		}

		sub.ExternalCustomerID = customerID
		sub.PaymentMethod = entity.PaymentMethodInvoice
		if err := l.persistSide(ctx, oc, sub, "invoice="+inv.ID); err != nil {
			return nil, err
		}
		out := l.View(sub)
		out.Invoice = &dto.InvoiceSummary{
			ID:        inv.ID,
			HostedURL: inv.HostedURL,
			PDFURL:    inv.PDFURL,
			DueDate:   inv.DueDate,
			AmountDue: inv.AmountDue,
		}
		return out, nil
	})
}

// requireFeature las operaciones de pago alternativo se comprueban sobre el plan contratado
// y activo; la prueba no las desbloquea.
func (l *Lifecycle) requireFeature(sub *entity.Subscription, feature string) error {
	if sub == nil {
		return domain.ErrSubscriptionNotFound
	}
	if sub.Status == entity.SubscriptionStatusCanceled {
		return domain.ErrSubscriptionCanceled
	}
	if !l.catalog.HasFeature(sub.Tier, feature) {
		return domain.ErrFeatureNotAvailable
	}
	return nil
}

func (l *Lifecycle) ensureCustomer(ctx context.Context, oc opContext, sub *entity.Subscription, email string) (string, error) {
	if sub.ExternalCustomerID != "" {
		return sub.ExternalCustomerID, nil
	}
	if email == "" {
		salon, err := l.salons.GetByID(ctx, oc.salonID)
		if err != nil {
			return "", err
		}
		if salon == nil {
			return "", domain.ErrSalonNotFound
		}
		email = salon.Email
	}
	var id string
	err := l.call(ctx, oc, sub, "get_or_create_customer", func(ctx context.Context) error {
		var err error
		id, err = l.processor.GetOrCreateCustomer(ctx, oc.salonID, email, oc.procKey("customer"))
		return err
	})
	return id, err
}

// persistSide guarda un cambio cuyo efecto en el procesador no es la suscripción
// (mandato, factura); remote describe ese efecto en el DriftReport.
func (l *Lifecycle) persistSide(ctx context.Context, oc opContext, sub *entity.Subscription, remote string) error {
	err := l.subs.Save(ctx, sub)
	if err == nil {
		return nil
	}
	l.recordDrift(context.WithoutCancel(ctx), &entity.DriftReport{
		SalonID:                oc.salonID,
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		Operation:              oc.op,
		Fields:                 []string{"payment_method"},
		Local:                  summarize(sub),
		Remote:                 remote,
		Detail:                 "el procesador confirmó pero el snapshot no se pudo guardar: " + err.Error(),
	}, oc.op)
	return fmt.Errorf("%w: %s (%v)", domain.ErrDrift, oc.op, err)
}

func normalizeIBAN(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// validateIBAN comprueba formato y dígitos de control (ISO 13616, mod 97).
func validateIBAN(iban string) error {
	if len(iban) < 15 || len(iban) > 34 {
		return domain.NewValidationError("iban", "longitud inválida", nil)
	}
	for i, r := range iban {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return domain.NewValidationError("iban", "debe empezar por el código de país", nil)
		case i >= 2 && i < 4 && (r < '0' || r > '9'):
			return domain.NewValidationError("iban", "dígitos de control inválidos", nil)
		case !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9'):
			return domain.NewValidationError("iban", "caracteres no permitidos", nil)
		}
	}
	rearranged := iban[4:] + iban[:4]
	mod := 0
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			v := int(r-'A') + 10
			mod = (mod*100 + v) % 97
		} else {
			mod = (mod*10 + int(r-'0')) % 97
		}
	}
	if mod != 1 {
		return domain.NewValidationError("iban", "dígitos de control incorrectos", nil)
	}
	return nil
}
