// Package entitlement decide en tiempo de petición si un salón puede usar una funcionalidad.
// Es el único punto de la aplicación que combina el snapshot de suscripción con el catálogo.
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/Salones-api/internal/domain/entity"
	"github.com/jhoicas/Salones-api/internal/domain/repository"
	"github.com/jhoicas/Salones-api/internal/domain/tier"
	"github.com/jhoicas/Salones-api/internal/infrastructure/metrics"
)

// Códigos estables de denegación.
const (
	CodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	CodeFeatureNotAvailable  = "FEATURE_NOT_AVAILABLE"
	CodeInsufficientTier     = "INSUFFICIENT_TIER"
)

// Decision resultado de una comprobación. Una denegación no es un error: el llamador decide
// cómo presentarla (403 con CTA en HTTP, aviso en la UI, ...).
type Decision struct {
	Allowed      bool
	Code         string // vacío si Allowed
	Feature      string
	CurrentTier  tier.Slug // plan efectivo evaluado (enterprise durante la prueba)
	RequiredTier tier.Slug
	Status       string
	Message      string
	// Warning solo lo usa SoftCheck: permitido pero el plan no lo incluye.
	Warning bool
}

// State plan y estado del salón tal como los evalúa el control de acceso.
type State struct {
	Tier       tier.Slug // plan efectivo
	StoredTier tier.Slug // plan contratado
	Status     string
	InTrial    bool
}

// Gate control de acceso por plan. No cachea: cada comprobación lee el snapshot, y las
// lecturas simultáneas del mismo salón se agrupan en una sola consulta.
type Gate struct {
	subs    repository.SubscriptionRepository
	catalog *tier.Catalog
	log     zerolog.Logger
	now     func() time.Time
	loads   singleflight.Group
}

// NewGate construye el control de acceso.
func NewGate(subs repository.SubscriptionRepository, catalog *tier.Catalog, log zerolog.Logger) *Gate {
	return &Gate{subs: subs, catalog: catalog, log: log, now: time.Now}
}

// WithClock sustituye el reloj (tests).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Catalog devuelve el catálogo con el que evalúa.
func (g *Gate) Catalog() *tier.Catalog { return g.catalog }

// State lee el snapshot y resuelve el plan efectivo. Sin suscripción: starter + inactive.
func (g *Gate) State(ctx context.Context, salonID string) (State, error) {
	// La lectura compartida no depende de la cancelación de quien la inició; cada llamador
	// deja de esperar con su propio contexto.
	ch := g.loads.DoChan(salonID, func() (any, error) {
		return g.subs.GetBySalonID(context.WithoutCancel(ctx), salonID)
	})
	var v any
	var err error
	select {
	case r := <-ch:
		v, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return State{Tier: g.catalog.Lowest(), StoredTier: g.catalog.Lowest(), Status: entity.SubscriptionStatusInactive},
			fmt.Errorf("entitlement: leer suscripción de %s: %w", salonID, err)
	}
	sub, _ := v.(*entity.Subscription)
	if sub == nil {
		return State{Tier: g.catalog.Lowest(), StoredTier: g.catalog.Lowest(), Status: entity.SubscriptionStatusInactive}, nil
	}
	st := State{
		Tier:       g.catalog.Normalize(sub.Tier),
		StoredTier: g.catalog.Normalize(sub.Tier),
		Status:     sub.Status,
	}
	if sub.InTrialAt(g.now()) {
		st.InTrial = true
		st.Tier = g.catalog.Highest()
	}
	return st, nil
}

// CheckAccess comprueba una funcionalidad. Ante un fallo de lectura deniega (fail closed)
// y devuelve además el error para que el llamador lo registre.
func (g *Gate) CheckAccess(ctx context.Context, salonID, feature string) (Decision, error) {
	st, err := g.State(ctx, salonID)
	if err != nil {
		d := g.inactive(st, feature)
		g.record("feature", d)
		return d, err
	}
	d := g.evaluate(st, feature)
	g.record("feature", d)
	return d, nil
}

// CheckAnyAccess permite si alguna de las funcionalidades está incluida; una lista vacía
// deniega. Al denegar informa el plan más barato que desbloquea alguna de ellas.
func (g *Gate) CheckAnyAccess(ctx context.Context, salonID string, features ...string) (Decision, error) {
	st, err := g.State(ctx, salonID)
	if err != nil {
		d := g.inactive(st, "")
		g.record("any_feature", d)
		return d, err
	}
	if len(features) == 0 {
		d := Decision{
			Code:        CodeFeatureNotAvailable,
			CurrentTier: st.Tier,
			Status:      st.Status,
			Message:     "No se indicó ninguna funcionalidad.",
		}
		g.record("any_feature", d)
		return d, nil
	}
	var best Decision
	for i, f := range features {
		d := g.evaluate(st, f)
		if d.Allowed {
			g.record("any_feature", d)
			return d, nil
		}
		if d.Code == CodeSubscriptionInactive {
			g.record("any_feature", d)
			return d, nil
		}
		// Las funcionalidades desconocidas no tienen plan; cualquier conocida las sustituye.
		switch {
		case i == 0, best.RequiredTier == "" && d.RequiredTier != "":
			best = d
		case d.RequiredTier != "" && g.catalog.Compare(d.RequiredTier, best.RequiredTier) < 0:
			best = d
		}
	}
	g.record("any_feature", best)
	return best, nil
}

// RequireMinimumTier comprueba el ordinal del plan efectivo.
func (g *Gate) RequireMinimumTier(ctx context.Context, salonID string, min tier.Slug) (Decision, error) {
	st, err := g.State(ctx, salonID)
	if err != nil {
		d := g.inactive(st, "")
		g.record("min_tier", d)
		return d, err
	}
	var d Decision
	switch {
	case !isEntitled(st.Status):
		d = g.inactive(st, "")
	case g.catalog.Compare(st.Tier, min) < 0:
		def, _ := g.catalog.TierOf(min)
		d = Decision{
			Code:         CodeInsufficientTier,
			CurrentTier:  st.Tier,
			RequiredTier: min,
			Status:       st.Status,
			Message:      fmt.Sprintf("Esta sección requiere el plan %s o superior.", def.DisplayName),
		}
	default:
		d = Decision{Allowed: true, CurrentTier: st.Tier, Status: st.Status}
	}
	g.record("min_tier", d)
	return d, nil
}

// SoftCheck nunca deniega: si el plan no incluye la funcionalidad devuelve un aviso.
// Los fallos de lectura se registran y se ignoran (fail open).
func (g *Gate) SoftCheck(ctx context.Context, salonID, feature string) Decision {
	st, err := g.State(ctx, salonID)
	if err != nil {
		g.log.Warn().Err(err).Str("salon_id", salonID).Str("feature", feature).
			Msg("comprobación blanda sin snapshot; se permite")
		d := Decision{Allowed: true, Feature: feature, CurrentTier: st.Tier, Status: st.Status}
		g.record("soft", d)
		return d
	}
	d := g.evaluate(st, feature)
	if !d.Allowed {
		d.Allowed = true
		d.Warning = true
	}
	g.record("soft", d)
	return d
}

func (g *Gate) evaluate(st State, feature string) Decision {
	if !isEntitled(st.Status) {
		return g.inactive(st, feature)
	}
	if feature != "" && !g.catalog.HasFeature(st.Tier, feature) {
		required, _ := g.catalog.CheapestTierFor(feature)
		msg := "Esta funcionalidad no está disponible en ningún plan."
		if def, ok := g.catalog.TierOf(required); ok {
			msg = fmt.Sprintf("Esta funcionalidad requiere el plan %s. Mejore su plan para activarla.", def.DisplayName)
		}
		return Decision{
			Code:         CodeFeatureNotAvailable,
			Feature:      feature,
			CurrentTier:  st.Tier,
			RequiredTier: required,
			Status:       st.Status,
			Message:      msg,
		}
	}
	return Decision{Allowed: true, Feature: feature, CurrentTier: st.Tier, Status: st.Status}
}

func (g *Gate) inactive(st State, feature string) Decision {
	msg := "La suscripción no está activa. Actualice su método de pago o elija un plan."
	if st.Status == entity.SubscriptionStatusInactive {
		msg = "El salón no tiene una suscripción activa. Elija un plan para continuar."
	}
	return Decision{
		Code:        CodeSubscriptionInactive,
		Feature:     feature,
		CurrentTier: st.Tier,
		Status:      st.Status,
		Message:     msg,
	}
}

func (g *Gate) record(check string, d Decision) {
	code := d.Code
	switch {
	case d.Warning:
		code = "WARNING"
	case d.Allowed:
		code = "ALLOWED"
	}
	metrics.GateDecisions.WithLabelValues(check, code).Inc()
}

func isEntitled(status string) bool {
	return status == entity.SubscriptionStatusActive || status == entity.SubscriptionStatusTrial
}
