package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateSubscriptionRequest body para POST /api/subscription.
type CreateSubscriptionRequest struct {
	Tier            string `json:"tier"`
	BillingCycle    string `json:"billing_cycle"`
	PaymentMethodID string `json:"payment_method_id,omitempty"` // referencia del método de pago en el procesador
	Trial           bool   `json:"trial"`
}

// ChangeTierRequest body para POST /api/subscription/upgrade.
type ChangeTierRequest struct {
	Tier         string `json:"tier"`
	BillingCycle string `json:"billing_cycle,omitempty"` // vacío = conserva el ciclo actual
}

// DowngradeRequest body para POST /api/subscription/downgrade.
type DowngradeRequest struct {
	Tier         string `json:"tier"`
	BillingCycle string `json:"billing_cycle,omitempty"`
	Immediate    bool   `json:"immediate"` // false = al final del periodo
}

// CancelRequest body para POST /api/subscription/cancel.
type CancelRequest struct {
	Immediately bool `json:"immediately"`
}

// ConvertTrialRequest body para POST /api/subscription/convert-trial.
type ConvertTrialRequest struct {
	Tier         string `json:"tier,omitempty"`
	BillingCycle string `json:"billing_cycle,omitempty"`
}

// SEPASetupRequest body para POST /api/subscription/payment-methods/sepa.
type SEPASetupRequest struct {
	IBAN          string `json:"iban"`
	AccountHolder string `json:"account_holder"`
	Email         string `json:"email"`
}

// ManualInvoiceRequest body para POST /api/subscription/invoices.
type ManualInvoiceRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	DueInDays   int             `json:"due_in_days,omitempty"` // por defecto 14
}

// ScheduledChangeResponse cambio de plan programado.
type ScheduledChangeResponse struct {
	NewTier       string    `json:"new_tier"`
	BillingCycle  string    `json:"billing_cycle"`
	EffectiveDate time.Time `json:"effective_date"`
}

// InvoiceSummary factura manual emitida.
type InvoiceSummary struct {
	ID        string          `json:"id"`
	HostedURL string          `json:"hosted_url"`
	PDFURL    string          `json:"pdf_url"`
	DueDate   time.Time       `json:"due_date"`
	AmountDue decimal.Decimal `json:"amount_due"`
}

// SubscriptionResponse vista pública de la suscripción (nunca el objeto del procesador).
type SubscriptionResponse struct {
	SalonID            string                   `json:"salon_id"`
	Tier               string                   `json:"tier"`
	TierName           string                   `json:"tier_name"`
	BillingCycle       string                   `json:"billing_cycle"`
	Status             string                   `json:"status"`
	Price              decimal.Decimal          `json:"price"`
	Currency           string                   `json:"currency"`
	CurrentPeriodStart time.Time                `json:"current_period_start"`
	CurrentPeriodEnd   time.Time                `json:"current_period_end"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	TrialEndsAt        *time.Time               `json:"trial_ends_at,omitempty"`
	ScheduledChange    *ScheduledChangeResponse `json:"scheduled_change,omitempty"`
	PaymentMethod      string                   `json:"payment_method"`

	// Extras según la operación.
	ProratedAmountDue *decimal.Decimal `json:"prorated_amount_due,omitempty"`
	FeaturesLost      []string         `json:"features_lost,omitempty"`
	ClientSecret      string           `json:"client_secret,omitempty"`
	SetupStatus       string           `json:"setup_status,omitempty"`
	Invoice           *InvoiceSummary  `json:"invoice,omitempty"`
	// AlreadyExists el alta encontró una suscripción viva y no aplicó el plan pedido.
	AlreadyExists bool `json:"already_exists,omitempty"`
}

// DriftReportResponse divergencia pendiente de revisión.
type DriftReportResponse struct {
	ID                     string    `json:"id"`
	SalonID                string    `json:"salon_id"`
	ExternalSubscriptionID string    `json:"external_subscription_id"`
	Operation              string    `json:"operation"`
	Fields                 []string  `json:"fields"`
	Local                  string    `json:"local"`
	Remote                 string    `json:"remote"`
	Detail                 string    `json:"detail,omitempty"`
	DetectedAt             time.Time `json:"detected_at"`
}
