// Package fakeprocessor implementa ports.PaymentProcessor en memoria. Respeta las claves de
// idempotencia como el procesador real y permite inyectar fallos y latencia.
// Se usa con PAYMENT_PROVIDER=fake y en los tests.
package fakeprocessor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// Nombres de llamada para FailNext y Calls.
const (
	CallGetOrCreateCustomer       = "get_or_create_customer"
	CallAttachPaymentMethod       = "attach_payment_method"
	CallSetDefaultPaymentMethod   = "set_default_payment_method"
	CallCreateSubscription        = "create_subscription"
	CallUpdateSubscriptionPrice   = "update_subscription_price"
	CallEndTrialNow               = "end_trial_now"
	CallCancelSubscription        = "cancel_subscription"
	CallScheduleCancelAtPeriodEnd = "schedule_cancel_at_period_end"
	CallCreateSetupIntent         = "create_setup_intent"
	CallCreateAndSendInvoice      = "create_and_send_invoice"
	CallGetSubscription           = "get_subscription"
)

// Processor procesador de pagos simulado.
type Processor struct {
	mu       sync.Mutex
	catalog  *tier.Catalog
	prices   *ports.PriceTable
	now      func() time.Time
	latency  time.Duration
	subs     map[string]*ports.ProcessorSubscription
	customer map[string]string // salonID → customerID
	methods  map[string][]string
	replies  map[string]any
	fail     map[string]error
	calls    map[string]int
	invoices []ports.InvoiceParams
}

var _ ports.PaymentProcessor = (*Processor)(nil)

// New crea el procesador. prices traduce referencias de precio a plan/ciclo y el catálogo da el importe.
func New(catalog *tier.Catalog, prices *ports.PriceTable, now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{
		catalog:  catalog,
		prices:   prices,
		now:      now,
		subs:     make(map[string]*ports.ProcessorSubscription),
		customer: make(map[string]string),
		methods:  make(map[string][]string),
		replies:  make(map[string]any),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// PriceRefs referencias de precio deterministas para el modo sin procesador real.
func PriceRefs(catalog *tier.Catalog) map[ports.PriceKey]string {
	out := make(map[ports.PriceKey]string)
	for _, d := range catalog.Tiers() {
		for _, c := range []tier.Cycle{tier.Monthly, tier.Yearly} {
			out[ports.PriceKey{Tier: d.Slug, Cycle: c}] = fmt.Sprintf("price_fake_%s_%s", d.Slug, c)
		}
	}
	return out
}

// FailNext hace que la próxima llamada call falle con err (antes de aplicar ningún cambio).
func (p *Processor) FailNext(call string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[call] = err
}

// SetLatency añade una espera tras aplicar cada cambio. Con un contexto más corto simula
// un timeout en el que el procesador sí llegó a confirmar.
func (p *Processor) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// Calls número de llamadas efectivas (no repetidas por idempotencia) a call.
func (p *Processor) Calls(call string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[call]
}

// SubscriptionCount número de suscripciones creadas.
func (p *Processor) SubscriptionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Mutate modifica una suscripción como si hubiera cambiado en el panel del procesador.
func (p *Processor) Mutate(id string, fn func(s *ports.ProcessorSubscription)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.subs[id]; ok {
		fn(s)
	}
}

// Invoices facturas emitidas.
func (p *Processor) Invoices() []ports.InvoiceParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.InvoiceParams(nil), p.invoices...)
}

// GetOrCreateCustomer devuelve el cliente del salón o lo crea.
func (p *Processor) GetOrCreateCustomer(ctx context.Context, salonID, email, key string) (string, error) {
	var id string
	err := p.do(ctx, CallGetOrCreateCustomer, key, &id, func() (any, error) {
		if c, ok := p.customer[salonID]; ok {
			return c, nil
		}
		c := "cus_" + short()
		p.customer[salonID] = c
		return c, nil
	})
	return id, err
}

// AttachPaymentMethod asocia el método al cliente.
func (p *Processor) AttachPaymentMethod(ctx context.Context, customerID, methodRef, key string) error {
	var ignored string
	return p.do(ctx, CallAttachPaymentMethod, key, &ignored, func() (any, error) {
		p.methods[customerID] = append(p.methods[customerID], methodRef)
		return methodRef, nil
	})
}

// SetDefaultPaymentMethod marca el método por defecto.
func (p *Processor) SetDefaultPaymentMethod(ctx context.Context, customerID, methodRef, key string) error {
	var ignored string
	return p.do(ctx, CallSetDefaultPaymentMethod, key, &ignored, func() (any, error) {
		for _, m := range p.methods[customerID] {
			if m == methodRef {
				return methodRef, nil
			}
		}
		return nil, &ports.ProcessorError{Op: CallSetDefaultPaymentMethod, SafeMessage: "método de pago no asociado al cliente",
			Err: fmt.Errorf("método %s no asociado a %s", methodRef, customerID)}
	})
}

// CreateSubscription crea la suscripción con prueba opcional.
func (p *Processor) CreateSubscription(ctx context.Context, in ports.CreateSubscriptionParams) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallCreateSubscription, in.IdempotencyKey, &out, func() (any, error) {
		key, ok := p.prices.Resolve(in.PriceRef)
		if !ok {
			return nil, invalidPrice(CallCreateSubscription, in.PriceRef)
		}
		now := p.now().UTC()
		s := &ports.ProcessorSubscription{
			ID:                 "sub_" + short(),
			CustomerID:         in.CustomerID,
			PriceRef:           in.PriceRef,
			Status:             ports.ProcessorStatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   periodEnd(now, key.Cycle),
		}
		if in.TrialDays > 0 {
			end := now.AddDate(0, 0, in.TrialDays)
			s.Status = ports.ProcessorStatusTrialing
			s.TrialEnd = &end
			s.CurrentPeriodEnd = end
		} else {
			s.LatestInvoiceAmountDue, _ = p.catalog.PriceFor(key.Tier, key.Cycle)
		}
		p.subs[s.ID] = s
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSubscriptionPrice cambia el precio. Con always_invoice cobra la diferencia
// prorrateada por el tiempo restante del periodo.
func (p *Processor) UpdateSubscriptionPrice(ctx context.Context, in ports.UpdatePriceParams) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallUpdateSubscriptionPrice, in.IdempotencyKey, &out, func() (any, error) {
		s, err := p.live(CallUpdateSubscriptionPrice, in.SubscriptionID)
		if err != nil {
			return nil, err
		}
		newKey, ok := p.prices.Resolve(in.PriceRef)
		if !ok {
			return nil, invalidPrice(CallUpdateSubscriptionPrice, in.PriceRef)
		}
		oldKey, _ := p.prices.Resolve(s.PriceRef)
		now := p.now().UTC()

		s.LatestInvoiceAmountDue = decimal.Zero
		if in.Proration == ports.ProrationAlwaysInvoice && s.Status == ports.ProcessorStatusActive {
			s.LatestInvoiceAmountDue = p.prorate(oldKey, newKey, s, now)
		}
		if oldKey.Cycle != newKey.Cycle && s.Status == ports.ProcessorStatusActive {
			s.CurrentPeriodStart = now
			s.CurrentPeriodEnd = periodEnd(now, newKey.Cycle)
		}
		s.PriceRef = in.PriceRef
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EndTrialNow finaliza la prueba y abre el primer periodo de pago.
func (p *Processor) EndTrialNow(ctx context.Context, in ports.EndTrialParams) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallEndTrialNow, in.IdempotencyKey, &out, func() (any, error) {
		s, err := p.live(CallEndTrialNow, in.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if in.PriceRef != "" {
			if _, ok := p.prices.Resolve(in.PriceRef); !ok {
				return nil, invalidPrice(CallEndTrialNow, in.PriceRef)
			}
			s.PriceRef = in.PriceRef
		}
		key, _ := p.prices.Resolve(s.PriceRef)
		now := p.now().UTC()
		s.Status = ports.ProcessorStatusActive
		s.TrialEnd = nil
		s.CurrentPeriodStart = now
		s.CurrentPeriodEnd = periodEnd(now, key.Cycle)
		s.LatestInvoiceAmountDue, _ = p.catalog.PriceFor(key.Tier, key.Cycle)
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSubscription cancela de inmediato.
func (p *Processor) CancelSubscription(ctx context.Context, id, key string) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallCancelSubscription, key, &out, func() (any, error) {
		s, ok := p.subs[id]
		if !ok {
			return nil, notFound(CallCancelSubscription, id)
		}
		s.Status = ports.ProcessorStatusCanceled
		s.CancelAtPeriodEnd = false
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ScheduleCancelAtPeriodEnd marca la cancelación al final del periodo.
func (p *Processor) ScheduleCancelAtPeriodEnd(ctx context.Context, id, key string) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallScheduleCancelAtPeriodEnd, key, &out, func() (any, error) {
		s, err := p.live(CallScheduleCancelAtPeriodEnd, id)
		if err != nil {
			return nil, err
		}
		s.CancelAtPeriodEnd = true
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSetupIntent registra un mandato SEPA simulado.
func (p *Processor) CreateSetupIntent(ctx context.Context, in ports.SetupIntentParams) (*ports.SetupIntentResult, error) {
	var out ports.SetupIntentResult
	err := p.do(ctx, CallCreateSetupIntent, in.IdempotencyKey, &out, func() (any, error) {
		id := "seti_" + short()
		p.methods[in.CustomerID] = append(p.methods[in.CustomerID], "pm_sepa_"+id)
		return ports.SetupIntentResult{ID: id, ClientSecret: id + "_secret_" + short(), Status: "requires_confirmation"}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAndSendInvoice emite una factura de una línea.
func (p *Processor) CreateAndSendInvoice(ctx context.Context, in ports.InvoiceParams) (*ports.InvoiceResult, error) {
	var out ports.InvoiceResult
	err := p.do(ctx, CallCreateAndSendInvoice, in.IdempotencyKey, &out, func() (any, error) {
		id := "in_" + short()
		p.invoices = append(p.invoices, in)
		return ports.InvoiceResult{
			ID:        id,
			HostedURL: "https://invoice.example.test/" + id,
			PDFURL:    "https://invoice.example.test/" + id + ".pdf",
			DueDate:   p.now().UTC().AddDate(0, 0, in.DaysUntilDue),
			AmountDue: in.Amount,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscription lectura sin efectos.
func (p *Processor) GetSubscription(ctx context.Context, id string) (*ports.ProcessorSubscription, error) {
	var out ports.ProcessorSubscription
	err := p.do(ctx, CallGetSubscription, "", &out, func() (any, error) {
		s, ok := p.subs[id]
		if !ok {
			return nil, notFound(CallGetSubscription, id)
		}
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do ejecuta fn bajo el mutex salvo que la clave ya tenga respuesta, en cuyo caso la repite.
// dst debe ser un puntero al tipo que devuelve fn.
func (p *Processor) do(ctx context.Context, call, key string, dst any, fn func() (any, error)) error {
	if err := ctx.Err(); err != nil {
		return &ports.ProcessorError{Op: call, Retryable: true, Timeout: true, SafeMessage: "tiempo de espera agotado", Err: err}
	}
	p.mu.Lock()
	if err, ok := p.fail[call]; ok {
		delete(p.fail, call)
		p.mu.Unlock()
		return err
	}
	replyKey := call + "|" + key
	reply, replayed := p.replies[replyKey]
	if !replayed || key == "" {
		var err error
		reply, err = fn()
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.calls[call]++
		if key != "" {
			p.replies[replyKey] = reply
		}
	}
	latency := p.latency
	p.mu.Unlock()

	assign(dst, reply)

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return &ports.ProcessorError{Op: call, Retryable: true, Timeout: true, SafeMessage: "tiempo de espera agotado", Err: ctx.Err()}
		}
	}
	return nil
}

func assign(dst, reply any) {
	switch d := dst.(type) {
	case *string:
		*d = reply.(string)
	case *ports.ProcessorSubscription:
		*d = reply.(ports.ProcessorSubscription)
	case *ports.SetupIntentResult:
		*d = reply.(ports.SetupIntentResult)
	case *ports.InvoiceResult:
		*d = reply.(ports.InvoiceResult)
	}
}

func (p *Processor) live(call, id string) (*ports.ProcessorSubscription, error) {
	s, ok := p.subs[id]
	if !ok {
		return nil, notFound(call, id)
	}
	if s.Status == ports.ProcessorStatusCanceled {
		return nil, &ports.ProcessorError{Op: call, SafeMessage: "la suscripción está cancelada",
			Err: fmt.Errorf("suscripción %s cancelada", id)}
	}
	return s, nil
}

func (p *Processor) prorate(oldKey, newKey ports.PriceKey, s *ports.ProcessorSubscription, now time.Time) decimal.Decimal {
	oldPrice, _ := p.catalog.PriceFor(oldKey.Tier, oldKey.Cycle)
	newPrice, _ := p.catalog.PriceFor(newKey.Tier, newKey.Cycle)
	if oldKey.Cycle != newKey.Cycle {
		// cambio de ciclo: se cobra el nuevo periodo completo menos el crédito del actual
		return newPrice.Sub(oldPrice.Mul(remaining(s, now))).Round(2)
	}
	diff := newPrice.Sub(oldPrice).Mul(remaining(s, now)).Round(2)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// remaining fracción del periodo actual que queda por consumir.
func remaining(s *ports.ProcessorSubscription, now time.Time) decimal.Decimal {
	total := s.CurrentPeriodEnd.Sub(s.CurrentPeriodStart)
	left := s.CurrentPeriodEnd.Sub(now)
	if total <= 0 || left <= 0 {
		return decimal.Zero
	}
	if left > total {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(left)).Div(decimal.NewFromInt(int64(total)))
}

func periodEnd(start time.Time, cycle tier.Cycle) time.Time {
	if cycle == tier.Yearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

func invalidPrice(call, ref string) error {
	return &ports.ProcessorError{Op: call, SafeMessage: "precio no disponible", Err: fmt.Errorf("precio desconocido %q", ref)}
}

func notFound(call, id string) error {
	return &ports.ProcessorError{Op: call, SafeMessage: "suscripción no encontrada en el procesador",
		Err: fmt.Errorf("suscripción %s no existe", id)}
}

func short() string {
	return uuid.New().String()[:14]
}
