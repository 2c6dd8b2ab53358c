package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
)

// ValidationErrorResponse 400 con el campo que no superó la validación.
type ValidationErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ProcessorErrorResponse 502 del procesador de pagos; retryable indica si reintentar con la
// misma Idempotency-Key tiene sentido.
type ProcessorErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Errores de transición de estado y concurrencia, en orden de comprobación.
var errorMappings = []errorMapping{
	{domain.ErrInvalidUpgrade, fiber.StatusUnprocessableEntity, "INVALID_UPGRADE", ""},
	{domain.ErrInvalidDowngrade, fiber.StatusUnprocessableEntity, "INVALID_DOWNGRADE", ""},
	{domain.ErrNotOnTrial, fiber.StatusConflict, "NOT_ON_TRIAL", ""},
	{domain.ErrFeatureNotAvailable, fiber.StatusForbidden, "FEATURE_NOT_AVAILABLE", ""},
	{domain.ErrSubscriptionCanceled, fiber.StatusConflict, "SUBSCRIPTION_CANCELED", ""},
	{domain.ErrSubscriptionNotFound, fiber.StatusNotFound, "SUBSCRIPTION_NOT_FOUND", ""},
	{domain.ErrSalonNotFound, fiber.StatusNotFound, "SALON_NOT_FOUND", ""},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", ""},
	{domain.ErrConcurrentModification, fiber.StatusConflict, "CONFLICT", ""},
	{domain.ErrIdempotencyInProgress, fiber.StatusConflict, "CONFLICT", ""},
	{domain.ErrLockTimeout, fiber.StatusServiceUnavailable, "BUSY", "el salón tiene otra operación de facturación en curso, reintente"},
	{domain.ErrDrift, fiber.StatusInternalServerError, "BILLING_SYNC_PENDING",
		"el cambio se aplicó en el procesador de pagos y se está sincronizando; no repita la operación"},
}

// writeError traduce errores del dominio y del procesador a respuestas HTTP. Los detalles
// internos solo van al log.
func writeError(c *fiber.Ctx, log zerolog.Logger, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse{
			Code: "VALIDATION", Message: ve.Error(), Field: ve.Field,
		})
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		return c.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse{Code: "VALIDATION", Message: err.Error()})
	}

	// Drift antes que ProcessorError: un timeout tras commit puede llevar ambos.
	if !errors.Is(err, domain.ErrDrift) {
		if pe, ok := ports.AsProcessorError(err); ok {
			log.Warn().Err(err).Str("salon_id", GetSalonID(c)).Bool("retryable", pe.Retryable).Msg("Error del procesador de pagos")
			return c.Status(fiber.StatusBadGateway).JSON(ProcessorErrorResponse{
				Code: "PAYMENT_PROVIDER_ERROR", Message: pe.SafeMessage, Retryable: pe.Retryable,
			})
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = m.err.Error()
			}
			if m.status >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("salon_id", GetSalonID(c)).Str("code", m.code).Msg("Error de facturación")
			}
			return c.Status(m.status).JSON(dto.ErrorResponse{Code: m.code, Message: msg})
		}
	}

	log.Error().Err(err).Str("salon_id", GetSalonID(c)).Str("path", c.Path()).Msg("Error interno")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: "error interno"})
}
