package http

import (
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Salones-api/internal/application/entitlement"
	"github.com/jhoicas/Salones-api/internal/application/smsbudget"
	"github.com/jhoicas/Salones-api/internal/application/subscription"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Lifecycle   *subscription.Lifecycle
	Gate        *entitlement.Gate
	SMS         *smsbudget.Service
	Catalog     *tier.Catalog
	JWTSecret   string
	UpgradeURL  string
	ServiceName string
	SwaggerFile string // vacío o inexistente = sin /docs
	Log         zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Swagger UI: http://localhost:<port>/docs
	if deps.SwaggerFile != "" {
		if _, err := os.Stat(deps.SwaggerFile); err == nil {
			app.Use(swagger.New(swagger.Config{
				BasePath: "/",
				FilePath: deps.SwaggerFile,
				Path:     "docs",
				Title:    "Salones Billing API",
			}))
		}
	}

	api := app.Group("/api")

	// Catálogo (público)
	api.Get("/tiers", NewTierHandler(deps.Catalog).List)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))
	gate := NewEntitlementMiddleware(deps.Gate, deps.UpgradeURL, deps.Log)

	entHandler := NewEntitlementHandler(deps.Gate, deps.Log)
	protected.Get("/entitlements", entHandler.List)
	protected.Get("/entitlements/:feature", entHandler.Check)

	smsHandler := NewSMSHandler(deps.SMS, deps.Log)
	smsGroup := protected.Group("/sms")
	smsGroup.Get("/allowance", smsHandler.Allowance)
	smsGroup.Post("/decision", smsHandler.Decision)
	smsGroup.Get("/overage", smsHandler.Overage)

	// Facturación: lectura para cualquier rol, cambios solo owner/manager.
	subHandler := NewSubscriptionHandler(deps.Lifecycle, deps.Log)
	subs := protected.Group("/subscription")
	subs.Get("/", subHandler.Get)
	billingAdmin := RequireRole(jwt.RoleOwner, jwt.RoleManager)
	subs.Post("/", billingAdmin, subHandler.Create)
	subs.Post("/upgrade", billingAdmin, subHandler.Upgrade)
	subs.Post("/downgrade", billingAdmin, subHandler.Downgrade)
	subs.Post("/cancel", billingAdmin, subHandler.Cancel)
	subs.Post("/convert-trial", billingAdmin, subHandler.ConvertTrial)
	subs.Post("/payment-methods/sepa", billingAdmin, gate.RequireMinimumTier(tier.Enterprise), subHandler.SetupSEPA)
	subs.Post("/invoices", billingAdmin, gate.RequireMinimumTier(tier.Enterprise), subHandler.CreateInvoice)
}
