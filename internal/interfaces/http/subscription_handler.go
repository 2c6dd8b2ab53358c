package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// SubscriptionHandler operaciones del ciclo de vida de la suscripción del salón del token.
type SubscriptionHandler struct {
	lc  *subscription.Lifecycle
	log zerolog.Logger
}

// NewSubscriptionHandler construye el handler.
func NewSubscriptionHandler(lc *subscription.Lifecycle, log zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{lc: lc, log: log}
}

// Get devuelve la suscripción actual.
// GET /api/subscription
func (h *SubscriptionHandler) Get(c *fiber.Ctx) error {
	resp, err := h.lc.Get(c.UserContext(), GetSalonID(c))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// Create da de alta la suscripción. 200 con already_exists si ya había una viva.
// POST /api/subscription
func (h *SubscriptionHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateSubscriptionRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	resp, err := h.lc.Create(c.UserContext(), subscription.CreateInput{
		SalonID:          GetSalonID(c),
		Tier:             tier.Slug(in.Tier),
		BillingCycle:     tier.Cycle(in.BillingCycle),
		PaymentMethodRef: in.PaymentMethodID,
		Trial:            in.Trial,
		IdempotencyKey:   idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	if resp.AlreadyExists {
		return c.JSON(resp)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Upgrade sube de plan con cargo prorrateado inmediato.
// POST /api/subscription/upgrade
func (h *SubscriptionHandler) Upgrade(c *fiber.Ctx) error {
	var in dto.ChangeTierRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	resp, err := h.lc.Upgrade(c.UserContext(), subscription.ChangeTierInput{
		SalonID:        GetSalonID(c),
		NewTier:        tier.Slug(in.Tier),
		BillingCycle:   tier.Cycle(in.BillingCycle),
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// Downgrade baja de plan, por defecto al final del periodo.
// POST /api/subscription/downgrade
func (h *SubscriptionHandler) Downgrade(c *fiber.Ctx) error {
	var in dto.DowngradeRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	resp, err := h.lc.Downgrade(c.UserContext(), subscription.DowngradeInput{
		SalonID:        GetSalonID(c),
		NewTier:        tier.Slug(in.Tier),
		BillingCycle:   tier.Cycle(in.BillingCycle),
		Immediate:      in.Immediate,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// Cancel cancela de inmediato o al final del periodo.
// POST /api/subscription/cancel
func (h *SubscriptionHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return invalidBody(c)
		}
	}
	resp, err := h.lc.Cancel(c.UserContext(), subscription.CancelInput{
		SalonID:        GetSalonID(c),
		Immediately:    in.Immediately,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// ConvertTrial termina la prueba y activa el plan elegido.
// POST /api/subscription/convert-trial
func (h *SubscriptionHandler) ConvertTrial(c *fiber.Ctx) error {
	var in dto.ConvertTrialRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return invalidBody(c)
		}
	}
	resp, err := h.lc.ConvertTrialToPaid(c.UserContext(), subscription.ConvertTrialInput{
		SalonID:        GetSalonID(c),
		SelectedTier:   tier.Slug(in.Tier),
		BillingCycle:   tier.Cycle(in.BillingCycle),
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(resp)
}

// SetupSEPA registra una domiciliación SEPA (enterprise).
// POST /api/subscription/payment-methods/sepa
func (h *SubscriptionHandler) SetupSEPA(c *fiber.Ctx) error {
	var in dto.SEPASetupRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	resp, err := h.lc.SetupAlternatePaymentMethod(c.UserContext(), subscription.SetupPaymentInput{
		SalonID: GetSalonID(c),
		Kind:    subscription.PaymentKindSEPA,
		Details: subscription.SEPADetails{
			IBAN:          in.IBAN,
			AccountHolder: in.AccountHolder,
			Email:         in.Email,
		},
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// CreateInvoice emite una factura manual (enterprise).
// POST /api/subscription/invoices
func (h *SubscriptionHandler) CreateInvoice(c *fiber.Ctx) error {
	var in dto.ManualInvoiceRequest
	if err := c.BodyParser(&in); err != nil {
		return invalidBody(c)
	}
	resp, err := h.lc.CreateManualInvoice(c.UserContext(), subscription.ManualInvoiceInput{
		SalonID:        GetSalonID(c),
		Amount:         in.Amount,
		Description:    in.Description,
		DueInDays:      in.DueInDays,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
