package http_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/entitlement"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/application/smsbudget"
	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/fakeprocessor"
	"github.com/jhoicas/Salones-api/internal/infrastructure/memory"
	apphttp "github.com/jhoicas/Salones-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/Salones-api/pkg/jwt"
)

const testUpgradeURL = "/settings/billing"

type apiHarness struct {
	app       *fiber.App
	subs      *memory.SubscriptionRepository
	processor *fakeprocessor.Processor
	owner     string
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	catalog := tier.Default()
	prices, err := ports.NewPriceTable(catalog, fakeprocessor.PriceRefs(catalog))
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	subs := memory.NewSubscriptionRepository()
	salons := memory.NewSalonRepository(entity.Salon{ID: testSalonID, Name: "Salón Centro", Email: "caja@centro.test", StaffCount: 8})
	processor := fakeprocessor.New(catalog, prices, clock)
	log := zerolog.Nop()

	lc := subscription.NewLifecycle(subscription.Deps{
		Subscriptions: subs,
		Salons:        salons,
		Drift:         memory.NewDriftRepository(),
		Processor:     processor,
		Prices:        prices,
		Idempotency:   memory.NewIdempotencyStore(),
		Locker:        memory.NewKeyedLocker(),
		Catalog:       catalog,
		Log:           log,
		Now:           clock,
	}, subscription.DefaultConfig())

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		Lifecycle:   lc,
		Gate:        entitlement.NewGate(subs, catalog, log).WithClock(clock),
		SMS:         smsbudget.NewService(salons, subs, catalog, log),
		Catalog:     catalog,
		JWTSecret:   testJWTSecret,
		UpgradeURL:  testUpgradeURL,
		ServiceName: "salones-test",
		Log:         log,
	})
	return &apiHarness{app: app, subs: subs, processor: processor, owner: tokenFor(t, testSalonID, pkgjwt.RoleOwner)}
}

func (h *apiHarness) do(t *testing.T, method, path, auth string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func (h *apiHarness) create(t *testing.T, slug tier.Slug) dto.SubscriptionResponse {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/api/subscription", h.owner,
		dto.CreateSubscriptionRequest{Tier: string(slug), BillingCycle: string(tier.Monthly)},
		apphttp.HeaderIdempotencyKey, "alta-"+string(slug))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out dto.SubscriptionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHealthYMetrics(t *testing.T) {
	h := newAPI(t)
	resp, body := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "salones-test")

	resp, body = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTiers_Publico(t *testing.T) {
	h := newAPI(t)
	resp, body := h.do(t, http.MethodGet, "/api/tiers", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.CatalogResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Tiers, 3)
	assert.Equal(t, "starter", out.Tiers[0].Slug)
	assert.Equal(t, "EUR", out.Currency)
	assert.Contains(t, out.Tiers[2].Features, tier.FeatureAPIAccess)
	assert.Len(t, out.Tiers[2].SMSOverage, 2)
}

func TestSubscription_FlujoCompleto(t *testing.T) {
	h := newAPI(t)
	created := h.create(t, tier.Professional)
	assert.Equal(t, "professional", created.Tier)
	assert.Equal(t, entity.SubscriptionStatusActive, created.Status)

	// apiAccess bloqueado en professional.
	resp, body := h.do(t, http.MethodGet, "/api/entitlements/"+tier.FeatureAPIAccess, h.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dec dto.EntitlementDecisionResponse
	require.NoError(t, json.Unmarshal(body, &dec))
	assert.False(t, dec.Allowed)
	assert.Equal(t, entitlement.CodeFeatureNotAvailable, dec.Code)
	assert.Equal(t, "enterprise", dec.RequiredTier)

	resp, body = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "up-1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var up dto.SubscriptionResponse
	require.NoError(t, json.Unmarshal(body, &up))
	assert.Equal(t, "enterprise", up.Tier)
	require.NotNil(t, up.ProratedAmountDue)
	assert.True(t, up.ProratedAmountDue.IsPositive())

	resp, body = h.do(t, http.MethodGet, "/api/entitlements", h.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ents dto.EntitlementsResponse
	require.NoError(t, json.Unmarshal(body, &ents))
	assert.True(t, ents.Features[tier.FeatureAPIAccess])

	// Repetir la petición con la misma clave devuelve el mismo resultado sin volver a cobrar.
	resp, _ = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "up-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.processor.Calls(fakeprocessor.CallUpdateSubscriptionPrice))

	resp, body = h.do(t, http.MethodGet, "/api/subscription", tokenFor(t, testSalonID, pkgjwt.RoleStaff), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "cualquier rol puede leer la suscripción")
	assert.Contains(t, string(body), `"tier":"enterprise"`)
}

// TestSubscription_ClaveObligatoria sin Idempotency-Key ninguna mutación llega al procesador.
func TestSubscription_ClaveObligatoria(t *testing.T) {
	h := newAPI(t)
	resp, body := h.do(t, http.MethodPost, "/api/subscription", h.owner,
		dto.CreateSubscriptionRequest{Tier: "starter", BillingCycle: "monthly"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var ve apphttp.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(body, &ve))
	assert.Equal(t, "VALIDATION", ve.Code)
	assert.Equal(t, "idempotency_key", ve.Field)

	resp, _ = h.do(t, http.MethodPost, "/api/subscription", h.owner,
		dto.CreateSubscriptionRequest{Tier: "starter", BillingCycle: "monthly"}, apphttp.HeaderIdempotencyKey, "   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, h.processor.SubscriptionCount())
}

// TestSubscription_MismoCuerpoOtraPeticion un upgrade, su bajada y el mismo upgrade otra vez
// son tres peticiones distintas aunque dos cuerpos coincidan.
func TestSubscription_MismoCuerpoOtraPeticion(t *testing.T) {
	h := newAPI(t)
	h.create(t, tier.Professional)
	upgrade := dto.ChangeTierRequest{Tier: "enterprise"}

	resp, body := h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner, upgrade, apphttp.HeaderIdempotencyKey, "up-a")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodPost, "/api/subscription/downgrade", h.owner,
		dto.DowngradeRequest{Tier: "professional", Immediate: true}, apphttp.HeaderIdempotencyKey, "down-a")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"tier":"professional"`)

	resp, body = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner, upgrade, apphttp.HeaderIdempotencyKey, "up-b")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"tier":"enterprise"`)
	assert.Equal(t, 3, h.processor.Calls(fakeprocessor.CallUpdateSubscriptionPrice))

	resp, body = h.do(t, http.MethodGet, "/api/subscription", h.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"tier":"enterprise"`, "el snapshot refleja el último upgrade")
}

// TestSubscription_AltaConSuscripcionViva el segundo alta responde 200 y avisa de que no cambió el plan.
func TestSubscription_AltaConSuscripcionViva(t *testing.T) {
	h := newAPI(t)
	h.create(t, tier.Starter)

	resp, body := h.do(t, http.MethodPost, "/api/subscription", h.owner,
		dto.CreateSubscriptionRequest{Tier: "enterprise", BillingCycle: "yearly"}, apphttp.HeaderIdempotencyKey, "alta-otra")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out dto.SubscriptionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.AlreadyExists)
	assert.Equal(t, "starter", out.Tier)
	assert.Equal(t, "monthly", out.BillingCycle)
	assert.Equal(t, 1, h.processor.SubscriptionCount())
}

func TestSubscription_StaffNoModifica(t *testing.T) {
	h := newAPI(t)
	resp, _ := h.do(t, http.MethodPost, "/api/subscription", tokenFor(t, testSalonID, pkgjwt.RoleStaff),
		dto.CreateSubscriptionRequest{Tier: "starter", BillingCycle: "monthly"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, h.processor.SubscriptionCount())
}

func TestSubscription_MapeoDeErrores(t *testing.T) {
	h := newAPI(t)

	resp, body := h.do(t, http.MethodGet, "/api/subscription", h.owner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "SUBSCRIPTION_NOT_FOUND")

	resp, body = h.do(t, http.MethodPost, "/api/subscription", h.owner,
		dto.CreateSubscriptionRequest{Tier: "gold", BillingCycle: "monthly"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var ve apphttp.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(body, &ve))
	assert.Equal(t, "VALIDATION", ve.Code)
	assert.Equal(t, "tier", ve.Field)

	h.create(t, tier.Professional)

	resp, body = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "starter"}, apphttp.HeaderIdempotencyKey, "up-starter")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "INVALID_UPGRADE")

	resp, body = h.do(t, http.MethodPost, "/api/subscription/downgrade", h.owner,
		dto.DowngradeRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "down-enterprise")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "INVALID_DOWNGRADE")

	resp, body = h.do(t, http.MethodPost, "/api/subscription/convert-trial", h.owner, nil,
		apphttp.HeaderIdempotencyKey, "convertir")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "NOT_ON_TRIAL")

	h.processor.FailNext(fakeprocessor.CallUpdateSubscriptionPrice, &ports.ProcessorError{
		Op: "update", Retryable: true, SafeMessage: "el procesador de pagos no responde", Err: errors.New("503 upstream"),
	})
	resp, body = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "up-fallo")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var pe apphttp.ProcessorErrorResponse
	require.NoError(t, json.Unmarshal(body, &pe))
	assert.Equal(t, "PAYMENT_PROVIDER_ERROR", pe.Code)
	assert.True(t, pe.Retryable)
	assert.NotContains(t, string(body), "503 upstream", "el detalle interno no se expone")

	h.subs.FailNextSave(errors.New("conexión perdida"))
	resp, body = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "up-drift")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "BILLING_SYNC_PENDING")
}

func TestSubscription_RutasEnterprise(t *testing.T) {
	h := newAPI(t)
	h.create(t, tier.Professional)

	resp, body := h.do(t, http.MethodPost, "/api/subscription/invoices", h.owner,
		map[string]any{"amount": "120.00", "description": "Formación"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var denied dto.EntitlementErrorResponse
	require.NoError(t, json.Unmarshal(body, &denied))
	assert.Equal(t, entitlement.CodeInsufficientTier, denied.Code)
	assert.Equal(t, "enterprise", denied.RequiredTier)
	assert.Equal(t, testUpgradeURL, denied.UpgradeURL)
	assert.Empty(t, h.processor.Invoices())

	resp, _ = h.do(t, http.MethodPost, "/api/subscription/upgrade", h.owner,
		dto.ChangeTierRequest{Tier: "enterprise"}, apphttp.HeaderIdempotencyKey, "up-enterprise")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.do(t, http.MethodPost, "/api/subscription/invoices", h.owner,
		map[string]any{"amount": "120.00", "description": "Formación"}, apphttp.HeaderIdempotencyKey, "factura-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var inv dto.SubscriptionResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	require.NotNil(t, inv.Invoice)
	assert.Equal(t, "120", inv.Invoice.AmountDue.String())

	resp, body = h.do(t, http.MethodPost, "/api/subscription/payment-methods/sepa", h.owner,
		dto.SEPASetupRequest{IBAN: "DE89370400440532013000", AccountHolder: "Salón Centro SL"},
		apphttp.HeaderIdempotencyKey, "sepa-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"payment_method":"sepa"`)
}

func TestSubscription_SinSuscripcionInactiva(t *testing.T) {
	h := newAPI(t)
	resp, body := h.do(t, http.MethodPost, "/api/subscription/invoices", h.owner, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), entitlement.CodeSubscriptionInactive)
}

func TestSMS_Endpoints(t *testing.T) {
	h := newAPI(t)
	h.create(t, tier.Enterprise)

	resp, body := h.do(t, http.MethodGet, "/api/sms/allowance", h.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var a dto.SMSAllowanceResponse
	require.NoError(t, json.Unmarshal(body, &a))
	assert.Equal(t, 650, a.Allowance)

	resp, body = h.do(t, http.MethodPost, "/api/sms/decision", h.owner,
		dto.SMSDecisionRequest{NotificationType: "booking_confirmation", Remaining: 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d dto.SMSDecisionResponse
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Equal(t, "medium", d.Priority)
	assert.Equal(t, "email", d.Channel, "medium se reserva con más del 80 % consumido")

	resp, body = h.do(t, http.MethodPost, "/api/sms/decision", h.owner,
		dto.SMSDecisionRequest{NotificationType: "booking_confirmation", Priority: "high", Remaining: 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &d))
	assert.Equal(t, "high", d.Priority)
	assert.Equal(t, "sms", d.Channel)

	resp, body = h.do(t, http.MethodPost, "/api/sms/decision", h.owner,
		dto.SMSDecisionRequest{NotificationType: "marketing", Priority: "urgent", Remaining: 100})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"field":"priority"`)

	resp, body = h.do(t, http.MethodGet, "/api/sms/overage?used=1200", h.owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o dto.SMSOverageResponse
	require.NoError(t, json.Unmarshal(body, &o))
	assert.Equal(t, 550, o.Excess)
	assert.Equal(t, "27.25", o.Cost.String())

	resp, _ = h.do(t, http.MethodGet, "/api/sms/overage?used=muchos", h.owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
