package plans

import "slices"

// Unlimited indicates no character quota for a plan (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// Plan is read-only reference data describing a subscription tier. The core
// treats plans as a lookup table supplied by configuration and never writes
// them.
type Plan struct {
	ID                 string           `yaml:"id"`
	Name               string           `yaml:"name"`
	CharactersPerMonth int64            `yaml:"characters_per_month"` // -1 means unlimited
	AllowedLanguages   []string         `yaml:"allowed_languages"`    // empty means all languages
	PriceByInterval    map[string]Money `yaml:"price_by_interval"`    // keyed by billing interval, e.g. "month", "year", "6 months"
	Public             bool             `yaml:"public"`
}

// IsUnlimited reports whether the plan has no character quota.
func (p Plan) IsUnlimited() bool {
	return p.CharactersPerMonth == Unlimited
}

// AllowsLanguage reports whether speech generation in the given language is
// available on this plan. An empty allow-list means every language.
func (p Plan) AllowsLanguage(lang string) bool {
	if len(p.AllowedLanguages) == 0 {
		return true
	}
	return slices.Contains(p.AllowedLanguages, lang)
}

// Price returns the price for a billing interval, if configured.
func (p Plan) Price(interval string) (Money, bool) {
	m, ok := p.PriceByInterval[interval]
	return m, ok
}
