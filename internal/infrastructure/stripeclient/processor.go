// Package stripeclient implementa ports.PaymentProcessor sobre la API de Stripe.
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/setupintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"golang.org/x/time/rate"

	"github.com/jhoicas/Salones-api/internal/application/ports"
)

// Config parámetros del cliente.
type Config struct {
	SecretKey  string
	Timeout    time.Duration // timeout HTTP por petición
	RatePerSec float64
	RateBurst  int
}

// api funciones de stripe-go usadas por el procesador; en tests se sustituyen por stubs.
type api struct {
	searchCustomer     func(params *stripe.CustomerSearchParams) (*stripe.Customer, error)
	newCustomer        func(params *stripe.CustomerParams) (*stripe.Customer, error)
	updateCustomer     func(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	attachMethod       func(id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)
	newSubscription    func(params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	getSubscription    func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	updateSubscription func(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	cancelSubscription func(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	newSetupIntent     func(params *stripe.SetupIntentParams) (*stripe.SetupIntent, error)
	newInvoice         func(params *stripe.InvoiceParams) (*stripe.Invoice, error)
	newInvoiceItem     func(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
	finalizeInvoice    func(id string, params *stripe.InvoiceFinalizeInvoiceParams) (*stripe.Invoice, error)
	sendInvoice        func(id string, params *stripe.InvoiceSendInvoiceParams) (*stripe.Invoice, error)
}

func defaultAPI() api {
	return api{
		searchCustomer: func(params *stripe.CustomerSearchParams) (*stripe.Customer, error) {
			iter := customer.Search(params)
			if iter.Next() {
				return iter.Customer(), nil
			}
			return nil, iter.Err()
		},
		newCustomer:        customer.New,
		updateCustomer:     customer.Update,
		attachMethod:       paymentmethod.Attach,
		newSubscription:    subscription.New,
		getSubscription:    subscription.Get,
		updateSubscription: subscription.Update,
		cancelSubscription: subscription.Cancel,
		newSetupIntent:     setupintent.New,
		newInvoice:         invoice.New,
		newInvoiceItem:     invoiceitem.New,
		finalizeInvoice:    invoice.FinalizeInvoice,
		sendInvoice:        invoice.SendInvoice,
	}
}

// Processor procesador de pagos Stripe.
type Processor struct {
	api     api
	limiter *rate.Limiter
}

var _ ports.PaymentProcessor = (*Processor)(nil)

// New configura la clave y el backend HTTP de stripe-go (timeout y reintentos de red) y
// devuelve el procesador.
func New(cfg Config) (*Processor, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe: secret key vacía")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	stripe.Key = cfg.SecretKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(2),
	}))
	return newProcessor(defaultAPI(), cfg), nil
}

func newProcessor(a api, cfg Config) *Processor {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Processor{api: a, limiter: rate.NewLimiter(limit, burst)}
}

// GetOrCreateCustomer busca el cliente por metadata salon_id y lo crea si no existe.
func (p *Processor) GetOrCreateCustomer(ctx context.Context, salonID, email, key string) (string, error) {
	const op = "get_or_create_customer"
	if err := p.wait(ctx, op); err != nil {
		return "", err
	}
	search := &stripe.CustomerSearchParams{SearchParams: stripe.SearchParams{
		Query:   fmt.Sprintf("metadata['salon_id']:'%s'", salonID),
		Context: ctx,
	}}
	c, err := p.api.searchCustomer(search)
	if err != nil {
		return "", mapError(op, err)
	}
	if c != nil {
		return c.ID, nil
	}

	params := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: map[string]string{"salon_id": salonID},
	}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	c, err = p.api.newCustomer(params)
	if err != nil {
		return "", mapError(op, err)
	}
	return c.ID, nil
}

// AttachPaymentMethod asocia el método de pago al cliente.
func (p *Processor) AttachPaymentMethod(ctx context.Context, customerID, methodRef, key string) error {
	const op = "attach_payment_method"
	if err := p.wait(ctx, op); err != nil {
		return err
	}
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	if _, err := p.api.attachMethod(methodRef, params); err != nil {
		return mapError(op, err)
	}
	return nil
}

// SetDefaultPaymentMethod fija el método por defecto de las facturas del cliente.
func (p *Processor) SetDefaultPaymentMethod(ctx context.Context, customerID, methodRef, key string) error {
	const op = "set_default_payment_method"
	if err := p.wait(ctx, op); err != nil {
		return err
	}
	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{DefaultPaymentMethod: stripe.String(methodRef)},
	}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	if _, err := p.api.updateCustomer(customerID, params); err != nil {
		return mapError(op, err)
	}
	return nil
}

// CreateSubscription crea la suscripción con un único precio.
func (p *Processor) CreateSubscription(ctx context.Context, in ports.CreateSubscriptionParams) (*ports.ProcessorSubscription, error) {
	const op = "create_subscription"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerID),
		Items:    []*stripe.SubscriptionItemsParams{{Price: stripe.String(in.PriceRef)}},
		Metadata: map[string]string{"salon_id": in.SalonID},
	}
	if in.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(in.TrialDays))
	}
	params.AddExpand("latest_invoice.confirmation_secret")
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)
	s, err := p.api.newSubscription(params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return toSubscription(s), nil
}

// UpdateSubscriptionPrice sustituye el precio del único item de la suscripción.
func (p *Processor) UpdateSubscriptionPrice(ctx context.Context, in ports.UpdatePriceParams) (*ports.ProcessorSubscription, error) {
	const op = "update_subscription_price"
	itemID, err := p.itemID(ctx, op, in.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{
		Items:             []*stripe.SubscriptionItemsParams{{ID: stripe.String(itemID), Price: stripe.String(in.PriceRef)}},
		ProrationBehavior: stripe.String(string(in.Proration)),
	}
	params.AddExpand("latest_invoice")
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)
	s, err := p.api.updateSubscription(in.SubscriptionID, params)
	if err != nil {
		return nil, mapError(op, err)
	}
	out := toSubscription(s)
	if in.Proration == ports.ProrationNone {
		out.LatestInvoiceAmountDue = decimal.Zero
	}
	return out, nil
}

// EndTrialNow termina la prueba (trial_end=now) y opcionalmente cambia el precio.
func (p *Processor) EndTrialNow(ctx context.Context, in ports.EndTrialParams) (*ports.ProcessorSubscription, error) {
	const op = "end_trial_now"
	params := &stripe.SubscriptionParams{TrialEndNow: stripe.Bool(true)}
	if in.PriceRef != "" {
		itemID, err := p.itemID(ctx, op, in.SubscriptionID)
		if err != nil {
			return nil, err
		}
		params.Items = []*stripe.SubscriptionItemsParams{{ID: stripe.String(itemID), Price: stripe.String(in.PriceRef)}}
		params.ProrationBehavior = stripe.String(string(ports.ProrationNone))
	}
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params.AddExpand("latest_invoice")
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)
	s, err := p.api.updateSubscription(in.SubscriptionID, params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return toSubscription(s), nil
}

// CancelSubscription cancela de inmediato.
func (p *Processor) CancelSubscription(ctx context.Context, id, key string) (*ports.ProcessorSubscription, error) {
	const op = "cancel_subscription"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	s, err := p.api.cancelSubscription(id, params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return toSubscription(s), nil
}

// ScheduleCancelAtPeriodEnd marca cancel_at_period_end.
func (p *Processor) ScheduleCancelAtPeriodEnd(ctx context.Context, id, key string) (*ports.ProcessorSubscription, error) {
	const op = "schedule_cancel_at_period_end"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	params.SetIdempotencyKey(key)
	s, err := p.api.updateSubscription(id, params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return toSubscription(s), nil
}

// CreateSetupIntent prepara el mandato SEPA. El IBAN lo confirma el cliente con Stripe
// Elements; aquí solo viajan el titular y los últimos dígitos como metadata.
func (p *Processor) CreateSetupIntent(ctx context.Context, in ports.SetupIntentParams) (*ports.SetupIntentResult, error) {
	const op = "create_setup_intent"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	last4 := in.IBAN
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(in.CustomerID),
		PaymentMethodTypes: []*string{stripe.String(in.MethodKind)},
		Usage:              stripe.String("off_session"),
		Metadata: map[string]string{
			"account_holder": in.AccountHolder,
			"iban_last4":     last4,
			"email":          in.Email,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)
	si, err := p.api.newSetupIntent(params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &ports.SetupIntentResult{ID: si.ID, ClientSecret: si.ClientSecret, Status: string(si.Status)}, nil
}

// CreateAndSendInvoice crea la factura (cobro por transferencia), le añade la línea, la
// finaliza y la envía por email. Cada paso lleva su propia clave derivada.
func (p *Processor) CreateAndSendInvoice(ctx context.Context, in ports.InvoiceParams) (*ports.InvoiceResult, error) {
	const op = "create_and_send_invoice"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	invParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(in.CustomerID),
		CollectionMethod:            stripe.String("send_invoice"),
		DaysUntilDue:                stripe.Int64(int64(in.DaysUntilDue)),
		Currency:                    stripe.String(string(stripe.CurrencyEUR)),
		Description:                 stripe.String(in.Description),
		PendingInvoiceItemsBehavior: stripe.String("exclude"),
	}
	invParams.Context = ctx
	invParams.SetIdempotencyKey(in.IdempotencyKey + ":invoice")
	inv, err := p.api.newInvoice(invParams)
	if err != nil {
		return nil, mapError(op, err)
	}

	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(in.CustomerID),
		Invoice:     stripe.String(inv.ID),
		Amount:      stripe.Int64(toCents(in.Amount)),
		Currency:    stripe.String(string(stripe.CurrencyEUR)),
		Description: stripe.String(in.Description),
	}
	itemParams.Context = ctx
	itemParams.SetIdempotencyKey(in.IdempotencyKey + ":item")
	if _, err := p.api.newInvoiceItem(itemParams); err != nil {
		return nil, mapError(op, err)
	}

	finParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finParams.Context = ctx
	finParams.SetIdempotencyKey(in.IdempotencyKey + ":finalize")
	if _, err := p.api.finalizeInvoice(inv.ID, finParams); err != nil {
		return nil, mapError(op, err)
	}

	sendParams := &stripe.InvoiceSendInvoiceParams{}
	sendParams.Context = ctx
	sendParams.SetIdempotencyKey(in.IdempotencyKey + ":send")
	sent, err := p.api.sendInvoice(inv.ID, sendParams)
	if err != nil {
		return nil, mapError(op, err)
	}
	return &ports.InvoiceResult{
		ID:        sent.ID,
		HostedURL: sent.HostedInvoiceURL,
		PDFURL:    sent.InvoicePDF,
		DueDate:   time.Unix(sent.DueDate, 0).UTC(),
		AmountDue: fromCents(sent.AmountDue),
	}, nil
}

// GetSubscription lee la suscripción.
func (p *Processor) GetSubscription(ctx context.Context, id string) (*ports.ProcessorSubscription, error) {
	const op = "get_subscription"
	if err := p.wait(ctx, op); err != nil {
		return nil, err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := p.api.getSubscription(id, params)
	if err != nil {
		return nil, mapError(op, err)
	}
	return toSubscription(s), nil
}

func (p *Processor) itemID(ctx context.Context, op, subscriptionID string) (string, error) {
	if err := p.wait(ctx, op); err != nil {
		return "", err
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := p.api.getSubscription(subscriptionID, params)
	if err != nil {
		return "", mapError(op, err)
	}
	if s.Items == nil || len(s.Items.Data) == 0 {
		return "", &ports.ProcessorError{Op: op, SafeMessage: "suscripción sin precio asociado",
			Err: fmt.Errorf("suscripción %s sin items", subscriptionID)}
	}
	return s.Items.Data[0].ID, nil
}

// wait aplica el límite de peticiones por segundo hacia Stripe.
func (p *Processor) wait(ctx context.Context, op string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &ports.ProcessorError{Op: op, Retryable: true, Timeout: ctx.Err() != nil,
			SafeMessage: "el procesador de pagos está saturado, intente más tarde", Err: err}
	}
	return nil
}

func toSubscription(s *stripe.Subscription) *ports.ProcessorSubscription {
	out := &ports.ProcessorSubscription{
		ID:                     s.ID,
		Status:                 string(s.Status),
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd,
		LatestInvoiceAmountDue: decimal.Zero,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			out.PriceRef = item.Price.ID
		}
		out.CurrentPeriodStart = unix(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unix(item.CurrentPeriodEnd)
	}
	if s.TrialEnd > 0 && s.Status == stripe.SubscriptionStatusTrialing {
		t := unix(s.TrialEnd)
		out.TrialEnd = &t
	}
	if inv := s.LatestInvoice; inv != nil {
		out.LatestInvoiceAmountDue = fromCents(inv.AmountDue)
		if inv.ConfirmationSecret != nil {
			out.ClientSecret = inv.ConfirmationSecret.ClientSecret
		}
	}
	return out
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// mapError traduce los errores de Stripe a ports.ProcessorError. El mensaje interno de Stripe
// nunca llega al usuario: solo SafeMessage.
func mapError(op string, err error) error {
	pe := &ports.ProcessorError{Op: op, Err: err, SafeMessage: "error del procesador de pagos"}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		pe.Retryable, pe.Timeout = true, true
		pe.SafeMessage = "tiempo de espera agotado con el procesador de pagos"
		return pe
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		// Error de red sin respuesta de Stripe.
		pe.Retryable = true
		return pe
	}
	switch {
	case se.Type == stripe.ErrorTypeCard:
		pe.SafeMessage = cardMessage(se)
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		pe.Retryable = true
		pe.SafeMessage = "el procesador de pagos está saturado, intente más tarde"
	case se.HTTPStatusCode >= 500:
		pe.Retryable = true
	case se.Code == stripe.ErrorCodeResourceMissing:
		pe.SafeMessage = "recurso no encontrado en el procesador de pagos"
	case se.Code == "idempotency_key_in_use":
		pe.Retryable = true
		pe.SafeMessage = "operación en curso, reintente en unos segundos"
	}
	return pe
}

func cardMessage(se *stripe.Error) string {
	switch se.Code {
	case stripe.ErrorCodeCardDeclined:
		if se.DeclineCode == stripe.DeclineCodeInsufficientFunds {
			return "fondos insuficientes"
		}
		return "tarjeta rechazada"
	case stripe.ErrorCodeExpiredCard:
		return "tarjeta caducada"
	case stripe.ErrorCodeIncorrectCVC:
		return "código de seguridad incorrecto"
	default:
		return "no se pudo procesar el pago con la tarjeta"
	}
}
