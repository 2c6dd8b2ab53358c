package tier_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Salones-api/internal/domain/tier"
)

// TestCatalog_Monotonia recorre todas las funcionalidades: si está activa en el ordinal N
// debe estarlo en todos los ordinales superiores.
func TestCatalog_Monotonia(t *testing.T) {
	c := tier.Default()
	tiers := c.Tiers()
	for _, key := range c.FeatureKeys() {
		unlocked := false
		for _, d := range tiers {
			if unlocked {
				assert.True(t, d.Features[key], "%q debe seguir activa en %q", key, d.Slug)
			}
			if d.Features[key] {
				unlocked = true
			}
		}
	}
}

func TestNewCatalog_RechazaFuncionalidadNoMonotona(t *testing.T) {
	defs := tier.Definitions()
	defs[2].Features[tier.FeatureMarketingCampaigns] = false

	_, err := tier.NewCatalog(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), tier.FeatureMarketingCampaigns)
}

func TestNewCatalog_RechazaOrdinalesFueraDeSecuencia(t *testing.T) {
	defs := tier.Definitions()
	defs[1].Ordinal = 5

	_, err := tier.NewCatalog(defs)
	assert.Error(t, err)
}

func TestCatalog_TierOfYNormalize(t *testing.T) {
	c := tier.Default()

	d, ok := c.TierOf(tier.Professional)
	require.True(t, ok)
	assert.Equal(t, 1, d.Ordinal)
	assert.Equal(t, "Professional", d.DisplayName)

	_, ok = c.TierOf("platinum")
	assert.False(t, ok, "un plan desconocido no existe")
	assert.Equal(t, tier.Starter, c.Normalize("platinum"), "desconocido se trata como starter")
	assert.False(t, c.HasFeature("platinum", tier.FeatureMarketingCampaigns))
}

func TestCatalog_Compare(t *testing.T) {
	c := tier.Default()
	assert.Equal(t, -1, c.Compare(tier.Starter, tier.Professional))
	assert.Equal(t, 0, c.Compare(tier.Enterprise, tier.Enterprise))
	assert.Equal(t, 1, c.Compare(tier.Enterprise, tier.Professional))
	assert.Equal(t, 0, c.Compare("desconocido", tier.Starter))
}

func TestCatalog_CheapestTierFor(t *testing.T) {
	c := tier.Default()

	s, ok := c.CheapestTierFor(tier.FeatureAPIAccess)
	require.True(t, ok)
	assert.Equal(t, tier.Enterprise, s)

	s, ok = c.CheapestTierFor(tier.FeatureMarketingCampaigns)
	require.True(t, ok)
	assert.Equal(t, tier.Professional, s)

	s, ok = c.CheapestTierFor(tier.FeatureOnlineBooking)
	require.True(t, ok)
	assert.Equal(t, tier.Starter, s)

	_, ok = c.CheapestTierFor("teleportation")
	assert.False(t, ok)
}

func TestCatalog_FeaturesLost(t *testing.T) {
	c := tier.Default()

	lost := c.FeaturesLost(tier.Enterprise, tier.Professional)
	assert.Contains(t, lost, tier.FeatureAPIAccess)
	assert.Contains(t, lost, tier.FeatureSMSReminders)
	assert.NotContains(t, lost, tier.FeatureMarketingCampaigns)

	assert.Empty(t, c.FeaturesLost(tier.Starter, tier.Enterprise), "subir de plan no pierde nada")
}

// TestYearlyPrice_Formula documenta la divergencia conocida entre la fórmula y los precios
// literales del catálogo: el catálogo es el que se factura.
func TestYearlyPrice_Formula(t *testing.T) {
	cases := []struct {
		monthly int64
		want    int64
	}{
		{69, 687},
		{169, 1683},
		{299, 2978},
		{100, 996},
	}
	for _, tc := range cases {
		got := tier.YearlyPrice(decimal.NewFromInt(tc.monthly))
		assert.True(t, got.Equal(decimal.NewFromInt(tc.want)), "YearlyPrice(%d) = %s, want %d", tc.monthly, got, tc.want)
	}

	c := tier.Default()
	literal, ok := c.PriceFor(tier.Professional, tier.Yearly)
	require.True(t, ok)
	assert.True(t, literal.Equal(decimal.NewFromInt(1690)), "el precio literal del catálogo prevalece")
	assert.False(t, literal.Equal(tier.YearlyPrice(decimal.NewFromInt(169))))
}

func TestCatalog_PriceFor_CicloInvalido(t *testing.T) {
	c := tier.Default()
	_, ok := c.PriceFor(tier.Starter, "weekly")
	assert.False(t, ok)
	_, ok = c.PriceFor("gold", tier.Monthly)
	assert.False(t, ok)
}

func TestOverageBand_Width(t *testing.T) {
	d, _ := tier.Default().TierOf(tier.Enterprise)
	require.Len(t, d.SMSOverage, 2)
	assert.Equal(t, 500, d.SMSOverage[0].Width())
	assert.Equal(t, tier.Unlimited, d.SMSOverage[1].Width())
}
