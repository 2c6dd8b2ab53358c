package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/entitlement"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// EntitlementHandler consultas de funcionalidades del salón del token (para la UI).
type EntitlementHandler struct {
	gate *entitlement.Gate
	log  zerolog.Logger
}

// NewEntitlementHandler construye el handler.
func NewEntitlementHandler(gate *entitlement.Gate, log zerolog.Logger) *EntitlementHandler {
	return &EntitlementHandler{gate: gate, log: log}
}

// List devuelve el mapa completo de funcionalidades.
// GET /api/entitlements
func (h *EntitlementHandler) List(c *fiber.Ctx) error {
	salonID := GetSalonID(c)
	st, err := h.gate.State(c.UserContext(), salonID)
	if err != nil {
		h.log.Error().Err(err).Str("salon_id", salonID).Msg("No se pudo leer la suscripción")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Code: "ENTITLEMENT_CHECK_FAILED", Message: "no se pudo verificar el plan, intente más tarde",
		})
	}
	catalog := h.gate.Catalog()
	entitled := st.Status == entity.SubscriptionStatusActive || st.Status == entity.SubscriptionStatusTrial
	features := make(map[string]bool, len(catalog.FeatureKeys()))
	for _, k := range catalog.FeatureKeys() {
		features[k] = entitled && catalog.HasFeature(st.Tier, k)
	}
	return c.JSON(dto.EntitlementsResponse{
		Tier:     string(st.Tier),
		Status:   st.Status,
		InTrial:  st.InTrial,
		Features: features,
	})
}

// Check decide una sola funcionalidad. Siempre responde 200: la denegación va en el cuerpo.
// GET /api/entitlements/:feature
func (h *EntitlementHandler) Check(c *fiber.Ctx) error {
	feature := c.Params("feature")
	if _, ok := h.gate.Catalog().CheapestTierFor(feature); !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "UNKNOWN_FEATURE", Message: "funcionalidad desconocida"})
	}
	d, err := h.gate.CheckAccess(c.UserContext(), GetSalonID(c), feature)
	if err != nil {
		h.log.Error().Err(err).Str("salon_id", GetSalonID(c)).Str("feature", feature).Msg("No se pudo verificar el plan")
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Code: "ENTITLEMENT_CHECK_FAILED", Message: "no se pudo verificar el plan, intente más tarde",
		})
	}
	return c.JSON(dto.EntitlementDecisionResponse{
		Feature:      feature,
		Allowed:      d.Allowed,
		Code:         d.Code,
		Message:      d.Message,
		CurrentTier:  string(d.CurrentTier),
		RequiredTier: string(d.RequiredTier),
		Status:       d.Status,
	})
}

// TierHandler catálogo público de planes.
type TierHandler struct {
	catalog *tier.Catalog
}

// NewTierHandler construye el handler.
func NewTierHandler(catalog *tier.Catalog) *TierHandler {
	return &TierHandler{catalog: catalog}
}

// List devuelve los planes ordenados por ordinal.
// GET /api/tiers
func (h *TierHandler) List(c *fiber.Ctx) error {
	defs := h.catalog.Tiers()
	out := dto.CatalogResponse{Version: tier.CatalogVersion, Currency: "EUR", Tiers: make([]dto.TierResponse, 0, len(defs))}
	for _, d := range defs {
		t := dto.TierResponse{
			Slug:         string(d.Slug),
			DisplayName:  d.DisplayName,
			Ordinal:      d.Ordinal,
			PriceMonthly: d.PriceMonthly,
			PriceYearly:  d.PriceYearly,
			Limits: dto.TierLimitsResponse{
				Staff:                 d.Limits.Staff,
				Locations:             d.Limits.Locations,
				BookingsPerMonth:      d.Limits.BookingsPerMonth,
				Customers:             d.Limits.Customers,
				StorageGB:             d.Limits.StorageGB,
				SMSPerMonth:           d.Limits.SMSPerMonth,
				SMSPerAdditionalStaff: d.Limits.SMSPerAdditionalStaff,
			},
			Features: h.catalog.FeaturesOf(d.Slug),
		}
		for _, b := range d.SMSOverage {
			t.SMSOverage = append(t.SMSOverage, dto.OverageBandResponse{From: b.From, To: b.To, PricePerUnit: b.PricePerUnit})
		}
		out.Tiers = append(out.Tiers, t)
	}
	return c.JSON(out)
}
