package models

// Provider identifies the external service behind an integration
type Provider string

const (
	ProviderStripe          Provider = "stripe"
	ProviderGoogleAds       Provider = "google_ads"
	ProviderMetaAds         Provider = "meta_ads"
	ProviderGoogleAnalytics Provider = "google_analytics"
	ProviderOther           Provider = "other"
)

var providerLabels = map[Provider]string{
	ProviderStripe:          "Stripe",
	ProviderGoogleAds:       "Google Ads",
	ProviderMetaAds:         "Meta Ads",
	ProviderGoogleAnalytics: "Google Analytics",
	ProviderOther:           "Other",
}

// Label returns the display name of the provider
func (p Provider) Label() string {
	if label, ok := providerLabels[p]; ok {
		return label
	}
	if p == "" {
		return "Unknown provider"
	}
	return string(p)
}

func (p Provider) IsValid() bool {
	_, ok := providerLabels[p]
	return ok
}

// OwnerScope is the kind of tenant that owns a record
type OwnerScope string

const (
	OwnerScopeAgency   OwnerScope = "agency"
	OwnerScopePlatform OwnerScope = "platform"
)
