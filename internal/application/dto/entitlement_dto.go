package dto

import "github.com/shopspring/decimal"

// EntitlementErrorResponse cuerpo 403 de una denegación del control de acceso.
// Incluye el plan mínimo y el enlace para mejorar el plan.
type EntitlementErrorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Feature      string `json:"feature,omitempty"`
	CurrentTier  string `json:"current_tier"`
	RequiredTier string `json:"required_tier,omitempty"`
	Status       string `json:"status"`
	UpgradeURL   string `json:"upgrade_url,omitempty"`
}

// EntitlementDecisionResponse resultado de GET /api/entitlements/:feature.
type EntitlementDecisionResponse struct {
	Feature      string `json:"feature"`
	Allowed      bool   `json:"allowed"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	CurrentTier  string `json:"current_tier"`
	RequiredTier string `json:"required_tier,omitempty"`
	Status       string `json:"status"`
}

// EntitlementsResponse mapa completo de funcionalidades del salón.
type EntitlementsResponse struct {
	Tier     string          `json:"tier"`
	Status   string          `json:"status"`
	InTrial  bool            `json:"in_trial"`
	Features map[string]bool `json:"features"`
}

// TierLimitsResponse límites de un plan (-1 = ilimitado).
type TierLimitsResponse struct {
	Staff                 int `json:"staff"`
	Locations             int `json:"locations"`
	BookingsPerMonth      int `json:"bookings_per_month"`
	Customers             int `json:"customers"`
	StorageGB             int `json:"storage_gb"`
	SMSPerMonth           int `json:"sms_per_month"`
	SMSPerAdditionalStaff int `json:"sms_per_additional_staff"`
}

// OverageBandResponse tramo de precio por SMS adicional.
type OverageBandResponse struct {
	From         int             `json:"from"`
	To           int             `json:"to"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// TierResponse plan del catálogo público.
type TierResponse struct {
	Slug         string                `json:"slug"`
	DisplayName  string                `json:"display_name"`
	Ordinal      int                   `json:"ordinal"`
	PriceMonthly decimal.Decimal       `json:"price_monthly"`
	PriceYearly  decimal.Decimal       `json:"price_yearly"`
	Limits       TierLimitsResponse    `json:"limits"`
	Features     []string              `json:"features"`
	SMSOverage   []OverageBandResponse `json:"sms_overage,omitempty"`
}

// CatalogResponse catálogo de planes vigente.
type CatalogResponse struct {
	Version  string         `json:"version"`
	Currency string         `json:"currency"`
	Tiers    []TierResponse `json:"tiers"`
}
