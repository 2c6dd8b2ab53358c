package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/entitlement"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// entitlementChecker contrato que necesitan los middlewares; lo implementa *entitlement.Gate.
type entitlementChecker interface {
	CheckAccess(ctx context.Context, salonID, feature string) (entitlement.Decision, error)
	CheckAnyAccess(ctx context.Context, salonID string, features ...string) (entitlement.Decision, error)
	RequireMinimumTier(ctx context.Context, salonID string, min tier.Slug) (entitlement.Decision, error)
	SoftCheck(ctx context.Context, salonID, feature string) entitlement.Decision
}

// HeaderEntitlementWarning lo añade SoftFeature cuando el plan no incluye la funcionalidad.
const HeaderEntitlementWarning = "X-Entitlement-Warning"

// EntitlementMiddleware middlewares de control de acceso por plan. Deben usarse DESPUÉS de
// AuthMiddleware (necesitan LocalSalonID).
//
// Comportamiento:
//   - 403 Forbidden → plan insuficiente o suscripción inactiva, con el plan mínimo y upgrade_url.
//   - 503 Service Unavailable → no se pudo leer la suscripción (se deniega, fail closed).
type EntitlementMiddleware struct {
	gate       entitlementChecker
	upgradeURL string
	log        zerolog.Logger
}

// NewEntitlementMiddleware construye los middlewares.
func NewEntitlementMiddleware(gate entitlementChecker, upgradeURL string, log zerolog.Logger) *EntitlementMiddleware {
	return &EntitlementMiddleware{gate: gate, upgradeURL: upgradeURL, log: log}
}

// RequireFeature exige que el plan efectivo incluya la funcionalidad.
func (m *EntitlementMiddleware) RequireFeature(feature string) fiber.Handler {
	return m.guard(func(ctx context.Context, salonID string) (entitlement.Decision, error) {
		return m.gate.CheckAccess(ctx, salonID, feature)
	})
}

// RequireAnyFeature exige al menos una de las funcionalidades.
func (m *EntitlementMiddleware) RequireAnyFeature(features ...string) fiber.Handler {
	return m.guard(func(ctx context.Context, salonID string) (entitlement.Decision, error) {
		return m.gate.CheckAnyAccess(ctx, salonID, features...)
	})
}

// RequireMinimumTier exige un plan igual o superior a min.
func (m *EntitlementMiddleware) RequireMinimumTier(min tier.Slug) fiber.Handler {
	return m.guard(func(ctx context.Context, salonID string) (entitlement.Decision, error) {
		return m.gate.RequireMinimumTier(ctx, salonID, min)
	})
}

// SoftFeature nunca bloquea: si el plan no incluye la funcionalidad añade la cabecera
// X-Entitlement-Warning con el plan requerido.
func (m *EntitlementMiddleware) SoftFeature(feature string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		salonID := GetSalonID(c)
		if salonID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "salon_id no encontrado en el token"})
		}
		d := m.gate.SoftCheck(c.UserContext(), salonID, feature)
		if d.Warning {
			c.Set(HeaderEntitlementWarning, string(d.RequiredTier))
		}
		c.Locals(LocalTier, string(d.CurrentTier))
		c.Locals(LocalSubscriptionStatus, d.Status)
		return c.Next()
	}
}

func (m *EntitlementMiddleware) guard(check func(ctx context.Context, salonID string) (entitlement.Decision, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		salonID := GetSalonID(c)
		if salonID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "salon_id no encontrado en el token"})
		}

		d, err := check(c.UserContext(), salonID)
		if err != nil {
			m.log.Error().Err(err).Str("salon_id", salonID).Str("path", c.Path()).Msg("No se pudo verificar el plan")
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
				Code:    "ENTITLEMENT_CHECK_FAILED",
				Message: "no se pudo verificar el plan, intente más tarde",
			})
		}
		if !d.Allowed {
			return c.Status(fiber.StatusForbidden).JSON(dto.EntitlementErrorResponse{
				Code:         d.Code,
				Message:      d.Message,
				Feature:      d.Feature,
				CurrentTier:  string(d.CurrentTier),
				RequiredTier: string(d.RequiredTier),
				Status:       d.Status,
				UpgradeURL:   m.upgradeURL,
			})
		}

		c.Locals(LocalTier, string(d.CurrentTier))
		c.Locals(LocalSubscriptionStatus, d.Status)
		return c.Next()
	}
}
