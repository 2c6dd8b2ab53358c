package tier

import "github.com/shopspring/decimal"

// Claves de funcionalidades controladas por plan.
const (
	FeatureOnlineBooking           = "onlineBooking"
	FeatureEmailReminders          = "emailReminders"
	FeatureCustomerDatabase        = "customerDatabase"
	FeatureBasicReports            = "basicReports"
	FeatureMarketingCampaigns      = "marketingCampaigns"
	FeatureAdvancedAnalytics       = "advancedAnalytics"
	FeatureMultiLocation           = "multiLocation"
	FeatureCustomBranding          = "customBranding"
	FeatureWaitlist                = "waitlist"
	FeatureSMSReminders            = "smsReminders"
	FeatureAPIAccess               = "apiAccess"
	FeatureWhiteLabel              = "whiteLabel"
	FeatureSEPADirectDebit         = "sepaDirectDebit"
	FeatureInvoiceBilling          = "invoiceBilling"
	FeaturePrioritySupport         = "prioritySupport"
	FeatureDedicatedAccountManager = "dedicatedAccountManager"
)

// SMSBaseStaff plantilla incluida en el cupo base de SMS de enterprise.
const SMSBaseStaff = 5

// Definitions devuelve la tabla de planes vigente (CatalogVersion).
// Cada llamada devuelve mapas nuevos: el llamador puede modificarlos sin afectar a otros.
func Definitions() []Definition {
	return []Definition{
		{
			Slug:         Starter,
			DisplayName:  "Starter",
			Ordinal:      0,
			PriceMonthly: decimal.NewFromInt(69),
			PriceYearly:  decimal.NewFromInt(690),
			Limits: Limits{
				Staff:                 2,
				Locations:             1,
				BookingsPerMonth:      500,
				Customers:             1000,
				StorageGB:             1,
				SMSPerMonth:           0,
				SMSPerAdditionalStaff: 0,
			},
			Features: map[string]bool{
				FeatureOnlineBooking:           true,
				FeatureEmailReminders:          true,
				FeatureCustomerDatabase:        true,
				FeatureBasicReports:            true,
				FeatureMarketingCampaigns:      false,
				FeatureAdvancedAnalytics:       false,
				FeatureMultiLocation:           false,
				FeatureCustomBranding:          false,
				FeatureWaitlist:                false,
				FeatureSMSReminders:            false,
				FeatureAPIAccess:               false,
				FeatureWhiteLabel:              false,
				FeatureSEPADirectDebit:         false,
				FeatureInvoiceBilling:          false,
				FeaturePrioritySupport:         false,
				FeatureDedicatedAccountManager: false,
			},
		},
		{
			Slug:         Professional,
			DisplayName:  "Professional",
			Ordinal:      1,
			PriceMonthly: decimal.NewFromInt(169),
			PriceYearly:  decimal.NewFromInt(1690),
			Limits: Limits{
				Staff:                 10,
				Locations:             3,
				BookingsPerMonth:      3000,
				Customers:             10000,
				StorageGB:             10,
				SMSPerMonth:           0,
				SMSPerAdditionalStaff: 0,
			},
			Features: map[string]bool{
				FeatureOnlineBooking:           true,
				FeatureEmailReminders:          true,
				FeatureCustomerDatabase:        true,
				FeatureBasicReports:            true,
				FeatureMarketingCampaigns:      true,
				FeatureAdvancedAnalytics:       true,
				FeatureMultiLocation:           true,
				FeatureCustomBranding:          true,
				FeatureWaitlist:                true,
				FeatureSMSReminders:            false,
				FeatureAPIAccess:               false,
				FeatureWhiteLabel:              false,
				FeatureSEPADirectDebit:         false,
				FeatureInvoiceBilling:          false,
				FeaturePrioritySupport:         false,
				FeatureDedicatedAccountManager: false,
			},
		},
		{
			Slug:         Enterprise,
			DisplayName:  "Enterprise",
			Ordinal:      2,
			PriceMonthly: decimal.NewFromInt(299),
			PriceYearly:  decimal.NewFromInt(2990),
			Limits: Limits{
				Staff:                 Unlimited,
				Locations:             Unlimited,
				BookingsPerMonth:      Unlimited,
				Customers:             Unlimited,
				StorageGB:             100,
				SMSPerMonth:           500,
				SMSPerAdditionalStaff: 50,
			},
			Features: map[string]bool{
				FeatureOnlineBooking:           true,
				FeatureEmailReminders:          true,
				FeatureCustomerDatabase:        true,
				FeatureBasicReports:            true,
				FeatureMarketingCampaigns:      true,
				FeatureAdvancedAnalytics:       true,
				FeatureMultiLocation:           true,
				FeatureCustomBranding:          true,
				FeatureWaitlist:                true,
				FeatureSMSReminders:            true,
				FeatureAPIAccess:               true,
				FeatureWhiteLabel:              true,
				FeatureSEPADirectDebit:         true,
				FeatureInvoiceBilling:          true,
				FeaturePrioritySupport:         true,
				FeatureDedicatedAccountManager: true,
			},
			SMSOverage: []OverageBand{
				{From: 501, To: 1000, PricePerUnit: decimal.RequireFromString("0.05")},
				{From: 1001, To: Unlimited, PricePerUnit: decimal.RequireFromString("0.045")},
			},
		},
	}
}

// Default construye el catálogo vigente. Entra en pánico si la tabla viola sus invariantes,
// lo que solo puede ocurrir por un error de programación en Definitions.
func Default() *Catalog {
	c, err := NewCatalog(Definitions())
	if err != nil {
		panic(err)
	}
	return c
}
