// Package subscription implementa el ciclo de vida de las suscripciones contra el procesador
// de pagos. Es el único escritor del snapshot local.
//
// Toda operación sigue el mismo orden: validar → clave de idempotencia → bloqueo del salón →
// leer snapshot → validar la transición → procesador (con timeout y clave derivada) →
// escribir snapshot con control de versión. Si el procesador confirmó pero la escritura local
// falla se registra un DriftReport y se devuelve domain.ErrDrift.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Salones-api/internal/application/dto"
	"github.com/jhoicas/Salones-api/internal/application/ports"
	"github.com/jhoicas/Salones-api/internal/domain"
	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/metrics"
)

// Nombres de operación (logs, métricas, claves derivadas y DriftReport.Operation).
const (
	OpCreate        = "create"
	OpUpgrade       = "upgrade"
	OpDowngrade     = "downgrade"
	OpCancel        = "cancel"
	OpConvertTrial  = "convert_trial"
	OpSetupSEPA     = "setup_sepa"
	OpManualInvoice = "manual_invoice"
	OpRebuild       = "rebuild"
	OpApplySchedule = "apply_scheduled"
)

// Currency única moneda soportada.
const Currency = "EUR"

// Config parámetros del ciclo de vida.
type Config struct {
	ProcessorTimeout   time.Duration
	IdempotencyTTL     time.Duration
	TrialDays          int
	InvoiceDueDays     int
	MaxInvoiceAmount   decimal.Decimal
	InvoiceDescription string
}

// DefaultConfig valores por defecto (15 s de timeout, 14 días de prueba y de vencimiento).
func DefaultConfig() Config {
	return Config{
		ProcessorTimeout:   15 * time.Second,
		IdempotencyTTL:     24 * time.Hour,
		TrialDays:          entity.TrialDays,
		InvoiceDueDays:     14,
		MaxInvoiceAmount:   decimal.NewFromInt(100000),
		InvoiceDescription: "Suscripción Salones",
	}
}

// Deps dependencias del ciclo de vida.
type Deps struct {
	Subscriptions repository.SubscriptionRepository
	Salons        repository.SalonRepository
	Drift         repository.DriftRepository
	Processor     ports.PaymentProcessor
	Prices        *ports.PriceTable
	Idempotency   ports.IdempotencyStore
	Locker        ports.TenantLocker
	Catalog       *tier.Catalog
	Log           zerolog.Logger
	Now           func() time.Time
}

// Lifecycle máquina de estados de la suscripción de cada salón.
type Lifecycle struct {
	subs      repository.SubscriptionRepository
	salons    repository.SalonRepository
	drift     repository.DriftRepository
	processor ports.PaymentProcessor
	prices    *ports.PriceTable
	idem      ports.IdempotencyStore
	locker    ports.TenantLocker
	catalog   *tier.Catalog
	log       zerolog.Logger
	now       func() time.Time
	cfg       Config
}

// NewLifecycle construye el ciclo de vida.
func NewLifecycle(d Deps, cfg Config) *Lifecycle {
	if d.Now == nil {
		d.Now = time.Now
	}
	def := DefaultConfig()
	if cfg.ProcessorTimeout <= 0 {
		cfg.ProcessorTimeout = def.ProcessorTimeout
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.InvoiceDueDays <= 0 {
		cfg.InvoiceDueDays = def.InvoiceDueDays
	}
	if cfg.MaxInvoiceAmount.IsZero() {
		cfg.MaxInvoiceAmount = def.MaxInvoiceAmount
	}
	if cfg.InvoiceDescription == "" {
		cfg.InvoiceDescription = def.InvoiceDescription
	}
	return &Lifecycle{
		subs:      d.Subscriptions,
		salons:    d.Salons,
		drift:     d.Drift,
		processor: d.Processor,
		prices:    d.Prices,
		idem:      d.Idempotency,
		locker:    d.Locker,
		catalog:   d.Catalog,
		log:       d.Log,
		now:       d.Now,
		cfg:       cfg,
	}
}

// opContext datos de la operación en curso que necesitan los pasos intermedios.
type opContext struct {
	op      string
	salonID string
	key     string
}

// procKey clave de idempotencia del procesador para un paso de la operación. Es estable
// para la misma petición lógica, de modo que un reintento nunca duplica un cobro.
func (o opContext) procKey(step string) string {
	return fmt.Sprintf("%s:%s:%s:%s", o.salonID, o.op, o.key, step)
}

// run aplica idempotencia y bloqueo alrededor de fn, que recibe el snapshot leído bajo el bloqueo.
func (l *Lifecycle) run(ctx context.Context, op, salonID, key string,
	fn func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error),
) (*dto.SubscriptionResponse, error) {
	if key == "" {
		return nil, domain.NewValidationError("idempotency_key", "es obligatoria", nil)
	}
	logger := l.log.With().Str("op", op).Str("salon_id", salonID).Str("idempotency_key", key).Logger()
	storeKey := fmt.Sprintf("subscription:%s:%s:%s", salonID, op, key)

	stored, started, err := l.idem.Begin(ctx, storeKey, l.cfg.IdempotencyTTL)
	if err != nil {
		metrics.LifecycleOperations.WithLabelValues(op, metrics.OutcomeError).Inc()
		return nil, err
	}
	if !started {
		var out dto.SubscriptionResponse
		if err := json.Unmarshal(stored, &out); err != nil {
			return nil, fmt.Errorf("subscription: resultado guardado ilegible: %w", err)
		}
		metrics.LifecycleOperations.WithLabelValues(op, metrics.OutcomeReplayed).Inc()
		logger.Info().Msg("operación repetida; se devuelve el resultado guardado")
		return &out, nil
	}

	out, err := l.locked(ctx, opContext{op: op, salonID: salonID, key: key}, fn)
	if err != nil {
		// La clave se libera para que el cliente pueda reintentar; las claves derivadas del
		// procesador garantizan que un paso ya confirmado no se repite.
		if rerr := l.idem.Release(context.WithoutCancel(ctx), storeKey); rerr != nil {
			logger.Warn().Err(rerr).Msg("no se pudo liberar la clave de idempotencia")
		}
		outcome := metrics.OutcomeError
		if errors.Is(err, domain.ErrDrift) {
			outcome = metrics.OutcomeDrift
		}
		metrics.LifecycleOperations.WithLabelValues(op, outcome).Inc()
		return nil, err
	}

	raw, err := json.Marshal(out)
	if err == nil {
		err = l.idem.Complete(context.WithoutCancel(ctx), storeKey, raw, l.cfg.IdempotencyTTL)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("no se pudo guardar el resultado para la clave de idempotencia")
	}
	metrics.LifecycleOperations.WithLabelValues(op, metrics.OutcomeOK).Inc()
	logger.Info().Str("tier", out.Tier).Str("status", out.Status).Msg("operación de suscripción completada")
	return out, nil
}

func (l *Lifecycle) locked(ctx context.Context, oc opContext,
	fn func(ctx context.Context, oc opContext, sub *entity.Subscription) (*dto.SubscriptionResponse, error),
) (*dto.SubscriptionResponse, error) {
	unlock, err := l.locker.Lock(ctx, oc.salonID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sub, err := l.subs.GetBySalonID(ctx, oc.salonID)
	if err != nil {
		return nil, fmt.Errorf("subscription: leer snapshot: %w", err)
	}
	return fn(ctx, oc, sub)
}

// call ejecuta una llamada al procesador con timeout propio. Un timeout puede ocurrir
// después de que el procesador confirmara, así que se deja constancia como posible divergencia.
func (l *Lifecycle) call(ctx context.Context, oc opContext, sub *entity.Subscription, name string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, l.cfg.ProcessorTimeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ProcessorDuration.WithLabelValues(name, outcome).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	pe, ok := ports.AsProcessorError(err)
	if !ok {
		pe = &ports.ProcessorError{Op: name, Err: err, SafeMessage: "error del procesador de pagos"}
		if errors.Is(err, context.DeadlineExceeded) {
			pe.Retryable, pe.Timeout = true, true
			pe.SafeMessage = "tiempo de espera agotado con el procesador de pagos"
		}
	}
	if pe.Timeout {
		l.recordDrift(context.WithoutCancel(ctx), &entity.DriftReport{
			SalonID:                oc.salonID,
			ExternalSubscriptionID: externalID(sub),
			Operation:              oc.op,
			Fields:                 []string{"unknown"},
			Local:                  summarize(sub),
			Remote:                 "desconocido (timeout)",
			Detail:                 fmt.Sprintf("timeout en %s; el procesador pudo confirmar el cambio", name),
		}, "timeout")
	}
	l.log.Error().Err(pe.Err).Str("op", oc.op).Str("salon_id", oc.salonID).Str("call", name).
		Bool("retryable", pe.Retryable).Msg("fallo del procesador de pagos")
	return pe
}

// persist escribe el snapshot. remote es el estado que el procesador ya confirmó: si la
// escritura falla, el procesador y el snapshot han divergido.
func (l *Lifecycle) persist(ctx context.Context, oc opContext, sub *entity.Subscription, remote *ports.ProcessorSubscription) error {
	err := l.subs.Save(ctx, sub)
	if err == nil {
		return nil
	}
	if remote == nil {
		return fmt.Errorf("subscription: guardar snapshot: %w", err)
	}
	l.recordDrift(context.WithoutCancel(ctx), &entity.DriftReport{
		SalonID:                oc.salonID,
		ExternalSubscriptionID: remote.ID,
		Operation:              oc.op,
		Fields:                 []string{"snapshot"},
		Local:                  summarize(sub),
		Remote:                 l.summarizeRemote(remote),
		Detail:                 "el procesador confirmó pero el snapshot no se pudo guardar: " + err.Error(),
	}, oc.op)
	return fmt.Errorf("%w: %s (%v)", domain.ErrDrift, oc.op, err)
}

// recordDrift persiste la divergencia, la registra como error y la cuenta. Nunca corrige.
func (l *Lifecycle) recordDrift(ctx context.Context, report *entity.DriftReport, source string) {
	recordDrift(ctx, l.drift, l.log, l.now, report, source)
}

func recordDrift(ctx context.Context, repo repository.DriftRepository, log zerolog.Logger, now func() time.Time, report *entity.DriftReport, source string) {
	if report.DetectedAt.IsZero() {
		report.DetectedAt = now().UTC()
	}
	metrics.DriftReports.WithLabelValues(source).Inc()
	log.Error().Bool("drift", true).Str("salon_id", report.SalonID).Str("op", report.Operation).
		Str("external_subscription_id", report.ExternalSubscriptionID).Strs("fields", report.Fields).
		Str("local", report.Local).Str("remote", report.Remote).Msg(report.Detail)
	if err := repo.Create(ctx, report); err != nil {
		log.Error().Err(err).Bool("drift", true).Str("salon_id", report.SalonID).
			Msg("no se pudo guardar el informe de divergencia")
	}
}

// applyRemote copia al snapshot los campos que manda el procesador.
func (l *Lifecycle) applyRemote(sub *entity.Subscription, remote *ports.ProcessorSubscription) {
	sub.Status = MapStatus(remote.Status)
	if !remote.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = remote.CurrentPeriodStart.UTC()
	}
	if !remote.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = remote.CurrentPeriodEnd.UTC()
	}
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	sub.TrialEndsAt = nil
	if sub.Status == entity.SubscriptionStatusTrial && remote.TrialEnd != nil {
		t := remote.TrialEnd.UTC()
		sub.TrialEndsAt = &t
	}
	if remote.ID != "" {
		sub.ExternalSubscriptionID = remote.ID
	}
	if remote.CustomerID != "" {
		sub.ExternalCustomerID = remote.CustomerID
	}
}

// MapStatus traduce el estado del procesador al estado local.
func MapStatus(s string) string {
	switch s {
	case ports.ProcessorStatusTrialing:
		return entity.SubscriptionStatusTrial
	case ports.ProcessorStatusActive:
		return entity.SubscriptionStatusActive
	case ports.ProcessorStatusCanceled, ports.ProcessorStatusIncompleteExpired:
		return entity.SubscriptionStatusCanceled
	default:
		return entity.SubscriptionStatusPastDue
	}
}

func (l *Lifecycle) priceRef(slug tier.Slug, cycle tier.Cycle) (string, error) {
	ref, ok := l.prices.PriceRef(slug, cycle)
	if !ok {
		return "", domain.NewValidationError("tier", fmt.Sprintf("sin precio configurado para %s/%s", slug, cycle), domain.ErrInvalidTier)
	}
	return ref, nil
}

func (l *Lifecycle) validateTier(field string, slug tier.Slug) error {
	if !l.catalog.Valid(slug) {
		return domain.NewValidationError(field, fmt.Sprintf("plan desconocido %q", slug), domain.ErrInvalidTier)
	}
	return nil
}

func validateCycle(cycle tier.Cycle, optional bool) error {
	if optional && cycle == "" {
		return nil
	}
	if !cycle.Valid() {
		return domain.NewValidationError("billing_cycle", fmt.Sprintf("ciclo desconocido %q", cycle), domain.ErrInvalidBillingCycle)
	}
	return nil
}

func validateSalon(salonID string) error {
	if salonID == "" {
		return domain.NewValidationError("salon_id", "es obligatorio", nil)
	}
	return nil
}

// requireLinked exige un snapshot con suscripción externa viva.
func requireLinked(sub *entity.Subscription) error {
	switch {
	case sub == nil || sub.ExternalSubscriptionID == "":
		return domain.ErrSubscriptionNotFound
	case sub.Status == entity.SubscriptionStatusCanceled:
		return domain.ErrSubscriptionCanceled
	}
	return nil
}

// View vista pública del snapshot.
func (l *Lifecycle) View(sub *entity.Subscription) *dto.SubscriptionResponse {
	def, _ := l.catalog.TierOf(l.catalog.Normalize(sub.Tier))
	price, _ := l.catalog.PriceFor(def.Slug, sub.BillingCycle)
	out := &dto.SubscriptionResponse{
		SalonID:            sub.SalonID,
		Tier:               string(sub.Tier),
		TierName:           def.DisplayName,
		BillingCycle:       string(sub.BillingCycle),
		Status:             sub.Status,
		Price:              price,
		Currency:           Currency,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		TrialEndsAt:        sub.TrialEndsAt,
		PaymentMethod:      sub.PaymentMethod,
	}
	if sc := sub.ScheduledChange; sc != nil {
		out.ScheduledChange = &dto.ScheduledChangeResponse{
			NewTier:       string(sc.NewTier),
			BillingCycle:  string(sc.BillingCycle),
			EffectiveDate: sc.EffectiveDate,
		}
	}
	return out
}

func summarize(sub *entity.Subscription) string {
	if sub == nil {
		return "sin snapshot"
	}
	return fmt.Sprintf("tier=%s cycle=%s status=%s period_end=%s cancel_at_period_end=%t",
		sub.Tier, sub.BillingCycle, sub.Status, sub.CurrentPeriodEnd.Format(time.RFC3339), sub.CancelAtPeriodEnd)
}

func (l *Lifecycle) summarizeRemote(r *ports.ProcessorSubscription) string {
	return summarizeRemote(l.prices, r)
}

func summarizeRemote(prices *ports.PriceTable, r *ports.ProcessorSubscription) string {
	k, _ := prices.Resolve(r.PriceRef)
	return fmt.Sprintf("tier=%s cycle=%s status=%s period_end=%s cancel_at_period_end=%t",
		k.Tier, k.Cycle, MapStatus(r.Status), r.CurrentPeriodEnd.UTC().Format(time.RFC3339), r.CancelAtPeriodEnd)
}

func externalID(sub *entity.Subscription) string {
	if sub == nil {
		return ""
	}
	return sub.ExternalSubscriptionID
}
