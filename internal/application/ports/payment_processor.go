package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Estados de suscripción tal como los informa el procesador.
const (
	ProcessorStatusTrialing          = "trialing"
	ProcessorStatusActive            = "active"
	ProcessorStatusPastDue           = "past_due"
	ProcessorStatusUnpaid            = "unpaid"
	ProcessorStatusIncomplete        = "incomplete"
	ProcessorStatusIncompleteExpired = "incomplete_expired"
	ProcessorStatusCanceled          = "canceled"
)

// Proration política de prorrateo al cambiar el precio de una suscripción.
type Proration string

const (
	// ProrationAlwaysInvoice cobra ahora la diferencia prorrateada (upgrades).
	ProrationAlwaysInvoice Proration = "always_invoice"
	// ProrationNone cambia el precio sin cargos ni abonos (downgrades).
	ProrationNone Proration = "none"
)

// ProcessorSubscription datos de la suscripción externa que el servicio necesita persistir.
type ProcessorSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceRef           string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	// ClientSecret para confirmar el primer pago en el cliente (si el procesador lo exige).
	ClientSecret string
	// LatestInvoiceAmountDue importe de la última factura (p. ej. el prorrateo de un upgrade), en EUR.
	LatestInvoiceAmountDue decimal.Decimal
}

// CreateSubscriptionParams entrada para crear una suscripción externa.
type CreateSubscriptionParams struct {
	SalonID        string
	CustomerID     string
	PriceRef       string
	TrialDays      int // 0 = sin prueba
	IdempotencyKey string
}

// UpdatePriceParams entrada para cambiar el precio de una suscripción existente.
type UpdatePriceParams struct {
	SubscriptionID string
	PriceRef       string
	Proration      Proration
	IdempotencyKey string
}

// EndTrialParams finaliza la prueba ahora; PriceRef vacío conserva el precio actual.
type EndTrialParams struct {
	SubscriptionID string
	PriceRef       string
	IdempotencyKey string
}

// SetupIntentParams alta de un método de pago alternativo (domiciliación SEPA).
type SetupIntentParams struct {
	CustomerID     string
	MethodKind     string // "sepa_debit"
	IBAN           string
	AccountHolder  string
	Email          string
	IdempotencyKey string
}

// SetupIntentResult respuesta del procesador al crear el SetupIntent.
type SetupIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// InvoiceParams factura manual con una línea.
type InvoiceParams struct {
	CustomerID     string
	Amount         decimal.Decimal // EUR
	Description    string
	DaysUntilDue   int
	IdempotencyKey string
}

// InvoiceResult factura finalizada y enviada.
type InvoiceResult struct {
	ID        string
	HostedURL string
	PDFURL    string
	DueDate   time.Time
	AmountDue decimal.Decimal
}

// PaymentProcessor define el puerto de salida hacia el procesador de pagos (suscripciones,
// facturas, domiciliaciones). La implementación concreta usa Stripe; en dev y tests se
// inyecta un procesador en memoria.
//
// Todas las operaciones que crean o modifican algo reciben una clave de idempotencia estable
// por petición lógica: reintentar con la misma clave nunca duplica un cobro.
type PaymentProcessor interface {
	GetOrCreateCustomer(ctx context.Context, salonID, email, idempotencyKey string) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, methodRef, idempotencyKey string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, methodRef, idempotencyKey string) error
	CreateSubscription(ctx context.Context, p CreateSubscriptionParams) (*ProcessorSubscription, error)
	UpdateSubscriptionPrice(ctx context.Context, p UpdatePriceParams) (*ProcessorSubscription, error)
	EndTrialNow(ctx context.Context, p EndTrialParams) (*ProcessorSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, idempotencyKey string) (*ProcessorSubscription, error)
	ScheduleCancelAtPeriodEnd(ctx context.Context, subscriptionID, idempotencyKey string) (*ProcessorSubscription, error)
	CreateSetupIntent(ctx context.Context, p SetupIntentParams) (*SetupIntentResult, error)
	CreateAndSendInvoice(ctx context.Context, p InvoiceParams) (*InvoiceResult, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProcessorSubscription, error)
}

// ProcessorError fallo del procesador de pagos. SafeMessage se puede mostrar al usuario
// (p. ej. "tarjeta rechazada"); Err conserva el detalle interno solo para logs.
type ProcessorError struct {
	Op          string
	Retryable   bool
	Timeout     bool
	SafeMessage string
	Err         error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("procesador de pagos (%s): %v", e.Op, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// AsProcessorError extrae un *ProcessorError de la cadena de errores.
func AsProcessorError(err error) (*ProcessorError, bool) {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
