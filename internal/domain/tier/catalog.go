// Package tier contiene el catálogo de planes (starter, professional, enterprise):
// límites, funcionalidades y precios. Solo datos y funciones puras, sin I/O.
package tier

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Slug identifica un plan.
type Slug string

// Planes disponibles, en orden estricto de ordinal.
const (
	Starter      Slug = "starter"
	Professional Slug = "professional"
	Enterprise   Slug = "enterprise"
)

// Cycle es el ciclo de facturación de una suscripción.
type Cycle string

const (
	Monthly Cycle = "monthly"
	Yearly  Cycle = "yearly"
)

// Valid informa si el ciclo es uno de los soportados.
func (c Cycle) Valid() bool {
	return c == Monthly || c == Yearly
}

// Unlimited marca un límite sin tope.
const Unlimited = -1

// CatalogVersion se incrementa cada vez que cambian límites, precios o funcionalidades.
const CatalogVersion = "2024-09"

// yearlyDiscount es el descuento anual publicado (17 %).
var yearlyDiscount = decimal.RequireFromString("0.17")

// Limits límites de recursos de un plan. -1 = ilimitado.
type Limits struct {
	Staff                 int `json:"staff"`
	Locations             int `json:"locations"`
	BookingsPerMonth      int `json:"bookings_per_month"`
	Customers             int `json:"customers"`
	StorageGB             int `json:"storage_gb"`
	SMSPerMonth           int `json:"sms_per_month"`
	SMSPerAdditionalStaff int `json:"sms_per_additional_staff"`
}

// OverageBand tramo de precio por SMS por encima del cupo incluido.
// To = -1 indica un tramo abierto.
type OverageBand struct {
	From         int             `json:"from"`
	To           int             `json:"to"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// Width devuelve cuántas unidades caben en el tramo (-1 si es abierto).
func (b OverageBand) Width() int {
	if b.To == Unlimited {
		return Unlimited
	}
	return b.To - b.From + 1
}

// Definition definición inmutable de un plan.
type Definition struct {
	Slug         Slug            `json:"slug"`
	DisplayName  string          `json:"display_name"`
	Ordinal      int             `json:"ordinal"`
	PriceMonthly decimal.Decimal `json:"price_monthly"`
	PriceYearly  decimal.Decimal `json:"price_yearly"`
	Limits       Limits          `json:"limits"`
	Features     map[string]bool `json:"features"`
	SMSOverage   []OverageBand   `json:"sms_overage,omitempty"`
}

// Catalog tabla de planes indexada por slug, con el índice derivado feature → plan más barato.
// Es inmutable una vez construida; se comparte entre goroutines sin bloqueo.
type Catalog struct {
	bySlug    map[Slug]Definition
	ordered   []Definition
	cheapest  map[string]Slug
	featureKs []string
}

// NewCatalog valida y construye un catálogo. Falla si los ordinales no forman 0..n-1
// o si alguna funcionalidad no es monótona (una vez activa en el plan N debe seguir activa en N+1..).
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("tier: catálogo vacío")
	}
	ordered := make([]Definition, len(defs))
	copy(ordered, defs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	c := &Catalog{
		bySlug:   make(map[Slug]Definition, len(defs)),
		ordered:  ordered,
		cheapest: make(map[string]Slug),
	}
	keys := make(map[string]struct{})
	for i, d := range ordered {
		if d.Ordinal != i {
			return nil, fmt.Errorf("tier: ordinal %d de %q fuera de secuencia", d.Ordinal, d.Slug)
		}
		if _, dup := c.bySlug[d.Slug]; dup {
			return nil, fmt.Errorf("tier: slug duplicado %q", d.Slug)
		}
		c.bySlug[d.Slug] = d
		for k := range d.Features {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		c.featureKs = append(c.featureKs, k)
	}
	sort.Strings(c.featureKs)

	for _, k := range c.featureKs {
		unlocked := false
		for _, d := range ordered {
			on := d.Features[k]
			if unlocked && !on {
				return nil, fmt.Errorf("tier: funcionalidad %q no monótona (se pierde en %q)", k, d.Slug)
			}
			if on && !unlocked {
				unlocked = true
				c.cheapest[k] = d.Slug
			}
		}
	}
	return c, nil
}

// TierOf devuelve la definición del plan. ok=false si el slug no existe.
func (c *Catalog) TierOf(slug Slug) (Definition, bool) {
	d, ok := c.bySlug[slug]
	return d, ok
}

// Normalize devuelve el slug si existe o el plan más restrictivo en caso contrario.
func (c *Catalog) Normalize(slug Slug) Slug {
	if _, ok := c.bySlug[slug]; ok {
		return slug
	}
	return c.ordered[0].Slug
}

// Valid informa si el slug pertenece al catálogo.
func (c *Catalog) Valid(slug Slug) bool {
	_, ok := c.bySlug[slug]
	return ok
}

// Ordinal devuelve el ordinal del plan; los desconocidos cuentan como el más bajo.
func (c *Catalog) Ordinal(slug Slug) int {
	return c.bySlug[c.Normalize(slug)].Ordinal
}

// Compare devuelve -1, 0 o 1 comparando los ordinales de a y b.
func (c *Catalog) Compare(a, b Slug) int {
	oa, ob := c.Ordinal(a), c.Ordinal(b)
	switch {
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return 0
	}
}

// HasFeature informa si el plan incluye la funcionalidad. Plan desconocido = starter.
func (c *Catalog) HasFeature(slug Slug, key string) bool {
	return c.bySlug[c.Normalize(slug)].Features[key]
}

// CheapestTierFor devuelve el primer plan (por ordinal) que incluye la funcionalidad.
func (c *Catalog) CheapestTierFor(key string) (Slug, bool) {
	s, ok := c.cheapest[key]
	return s, ok
}

// FeaturesOf devuelve las funcionalidades activas del plan, ordenadas.
func (c *Catalog) FeaturesOf(slug Slug) []string {
	d := c.bySlug[c.Normalize(slug)]
	out := make([]string, 0, len(d.Features))
	for _, k := range c.featureKs {
		if d.Features[k] {
			out = append(out, k)
		}
	}
	return out
}

// FeaturesLost devuelve las funcionalidades activas en from e inactivas en to.
func (c *Catalog) FeaturesLost(from, to Slug) []string {
	f, t := c.bySlug[c.Normalize(from)], c.bySlug[c.Normalize(to)]
	lost := make([]string, 0)
	for _, k := range c.featureKs {
		if f.Features[k] && !t.Features[k] {
			lost = append(lost, k)
		}
	}
	return lost
}

// FeatureKeys todas las claves conocidas, ordenadas.
func (c *Catalog) FeatureKeys() []string {
	out := make([]string, len(c.featureKs))
	copy(out, c.featureKs)
	return out
}

// Tiers devuelve las definiciones ordenadas por ordinal.
func (c *Catalog) Tiers() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Lowest el plan de menor ordinal.
func (c *Catalog) Lowest() Slug { return c.ordered[0].Slug }

// Highest el plan de mayor ordinal.
func (c *Catalog) Highest() Slug { return c.ordered[len(c.ordered)-1].Slug }

// PriceFor devuelve el precio literal del catálogo para el plan y ciclo.
// Estos valores son los que se facturan; YearlyPrice es solo orientativo.
func (c *Catalog) PriceFor(slug Slug, cycle Cycle) (decimal.Decimal, bool) {
	d, ok := c.bySlug[slug]
	if !ok {
		return decimal.Zero, false
	}
	switch cycle {
	case Monthly:
		return d.PriceMonthly, true
	case Yearly:
		return d.PriceYearly, true
	default:
		return decimal.Zero, false
	}
}

// YearlyPrice aplica la fórmula publicada round(mensual*12*(1-0.17)).
// No coincide exactamente con los precios literales del catálogo (p. ej. 169 → 1683 frente a 1690).
func YearlyPrice(monthly decimal.Decimal) decimal.Decimal {
	return monthly.Mul(decimal.NewFromInt(12)).Mul(decimal.NewFromInt(1).Sub(yearlyDiscount)).Round(0)
}
