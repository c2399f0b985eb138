package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the initial data loaded by the seed command.
type Seed struct {
	Settings SeedSettings `yaml:"settings"`
	SEO      []SeedSEO    `yaml:"seo"`
}

// SeedSettings mirrors the payment policy keys; nil fields are left untouched.
type SeedSettings struct {
	PaymentRequired   *bool   `yaml:"payment_required"`
	FreeTrialsEnabled *bool   `yaml:"free_trials_enabled"`
	FreeTrialLimit    *int    `yaml:"free_trial_limit"`
	PriceCents        *int    `yaml:"price_cents"`
	Currency          *string `yaml:"currency"`
}

type SeedSEO struct {
	Path        string `yaml:"path"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Keywords    string `yaml:"keywords"`
	OGImage     string `yaml:"og_image"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, entry := range seed.SEO {
		if !strings.HasPrefix(entry.Path, "/") {
			return nil, fmt.Errorf("seo entry %d: path must start with /", i)
		}
	}
	if seed.Settings.FreeTrialLimit != nil && *seed.Settings.FreeTrialLimit < 0 {
		return nil, fmt.Errorf("settings: free_trial_limit cannot be negative")
	}
	if seed.Settings.PriceCents != nil && *seed.Settings.PriceCents <= 0 {
		return nil, fmt.Errorf("settings: price_cents must be positive")
	}
	return &seed, nil
}
