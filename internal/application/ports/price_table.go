package ports

import (
	"fmt"

	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// PriceTable traduce (plan, ciclo) a la referencia de precio del procesador y viceversa.
// Se configura fuera del motor: 3 planes × 2 ciclos.
type PriceTable struct {
	refs    map[tier.Slug]map[tier.Cycle]string
	reverse map[string]PriceKey
}

// PriceKey plan y ciclo asociados a una referencia de precio.
type PriceKey struct {
	Tier  tier.Slug
	Cycle tier.Cycle
}

// NewPriceTable valida que todos los planes del catálogo tengan precio en ambos ciclos.
func NewPriceTable(catalog *tier.Catalog, refs map[PriceKey]string) (*PriceTable, error) {
	pt := &PriceTable{
		refs:    make(map[tier.Slug]map[tier.Cycle]string),
		reverse: make(map[string]PriceKey, len(refs)),
	}
	for _, d := range catalog.Tiers() {
		for _, cycle := range []tier.Cycle{tier.Monthly, tier.Yearly} {
			ref := refs[PriceKey{Tier: d.Slug, Cycle: cycle}]
			if ref == "" {
				return nil, fmt.Errorf("precio no configurado para %s/%s", d.Slug, cycle)
			}
			if prev, dup := pt.reverse[ref]; dup {
				return nil, fmt.Errorf("precio %q repetido en %s/%s y %s/%s", ref, prev.Tier, prev.Cycle, d.Slug, cycle)
			}
			if pt.refs[d.Slug] == nil {
				pt.refs[d.Slug] = make(map[tier.Cycle]string, 2)
			}
			pt.refs[d.Slug][cycle] = ref
			pt.reverse[ref] = PriceKey{Tier: d.Slug, Cycle: cycle}
		}
	}
	return pt, nil
}

// PriceRef devuelve la referencia de precio del procesador.
func (pt *PriceTable) PriceRef(slug tier.Slug, cycle tier.Cycle) (string, bool) {
	ref, ok := pt.refs[slug][cycle]
	return ref, ok
}

// Resolve devuelve el plan y ciclo de una referencia de precio.
func (pt *PriceTable) Resolve(priceRef string) (PriceKey, bool) {
	k, ok := pt.reverse[priceRef]
	return k, ok
}
