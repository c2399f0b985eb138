package settings

import (
	"fmt"
	"strings"
)

// Keys of the app_settings table.
const (
	KeyPaymentRequired   = "payment_required"
	KeyFreeTrialsEnabled = "free_trials_enabled"
	KeyFreeTrialLimit    = "free_trial_limit"
	KeyPriceCents        = "price_cents"
	KeyCurrency          = "currency"
)

// Policy is the payment configuration applied to generations.
type Policy struct {
	PaymentRequired   bool   `json:"payment_required"`
	FreeTrialsEnabled bool   `json:"free_trials_enabled"`
	FreeTrialLimit    int    `json:"free_trial_limit"`
	PriceCents        int    `json:"price_cents"`
	Currency          string `json:"currency"`
}

// DefaultPolicy is used for keys missing from the store.
func DefaultPolicy() Policy {
	return Policy{
		PaymentRequired:   true,
		FreeTrialsEnabled: true,
		FreeTrialLimit:    1,
		PriceCents:        499,
		Currency:          "eur",
	}
}

// Patch updates a subset of the policy.
type Patch struct {
	PaymentRequired   *bool   `json:"payment_required,omitempty"`
	FreeTrialsEnabled *bool   `json:"free_trials_enabled,omitempty"`
	FreeTrialLimit    *int    `json:"free_trial_limit,omitempty"`
	PriceCents        *int    `json:"price_cents,omitempty"`
	Currency          *string `json:"currency,omitempty"`
}

// Entry is one raw key/value row.
type Entry struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}

// Validate checks the patch values.
func (p Patch) Validate() (string, error) {
	if p.FreeTrialLimit != nil && *p.FreeTrialLimit < 0 {
		return KeyFreeTrialLimit, fmt.Errorf("free_trial_limit cannot be negative")
	}
	if p.PriceCents != nil && *p.PriceCents <= 0 {
		return KeyPriceCents, fmt.Errorf("price_cents must be positive")
	}
	if p.Currency != nil {
		c := strings.TrimSpace(*p.Currency)
		if len(c) != 3 {
			return KeyCurrency, fmt.Errorf("currency must be a 3-letter ISO code")
		}
	}
	return "", nil
}

// Entries renders the set fields of the patch as raw rows.
func (p Patch) Entries() []Entry {
	var out []Entry
	if p.PaymentRequired != nil {
		out = append(out, Entry{KeyPaymentRequired, fmt.Sprintf("%t", *p.PaymentRequired)})
	}
	if p.FreeTrialsEnabled != nil {
		out = append(out, Entry{KeyFreeTrialsEnabled, fmt.Sprintf("%t", *p.FreeTrialsEnabled)})
	}
	if p.FreeTrialLimit != nil {
		out = append(out, Entry{KeyFreeTrialLimit, fmt.Sprintf("%d", *p.FreeTrialLimit)})
	}
	if p.PriceCents != nil {
		out = append(out, Entry{KeyPriceCents, fmt.Sprintf("%d", *p.PriceCents)})
	}
	if p.Currency != nil {
		out = append(out, Entry{KeyCurrency, strings.ToLower(strings.TrimSpace(*p.Currency))})
	}
	return out
}
