package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PrivacyPolicy holds the tunables of inference, validation and exposure.
// Loaded from an optional YAML file; absent keys keep their defaults.
type PrivacyPolicy struct {
	// PIILexicon is matched case-insensitively as a substring of column headers
	PIILexicon []string `yaml:"piiLexicon"`

	// SampleSize is the number of non-null values inspected per column
	SampleSize int `yaml:"sampleSize"`

	MaxKAnonymity int `yaml:"maxKAnonymity"`

	// DetectValuePII also marks a column PII when at least half of its
	// sampled values look like emails, SSNs, card numbers or IPv4 addresses
	DetectValuePII bool `yaml:"detectValuePII"`

	// AllowLexicographic permits ordered filters on string columns
	AllowLexicographic bool `yaml:"allowLexicographic"`

	PreviewLimit   int           `yaml:"previewLimit"`
	RuleCacheSize  int           `yaml:"ruleCacheSize"`
	RuleCacheTTL   time.Duration `yaml:"ruleCacheTTL"`
	RowsCacheSize  int           `yaml:"rowsCacheSize"`
	RowsCacheTTL   time.Duration `yaml:"rowsCacheTTL"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes"`
}

// DefaultPrivacyPolicy returns the reference policy
func DefaultPrivacyPolicy() PrivacyPolicy {
	return PrivacyPolicy{
		PIILexicon:     []string{"name", "email", "phone", "ssn", "address"},
		SampleSize:     100,
		MaxKAnonymity:  10,
		PreviewLimit:   50,
		RuleCacheSize:  512,
		RuleCacheTTL:   5 * time.Minute,
		RowsCacheSize:  16,
		RowsCacheTTL:   10 * time.Minute,
		MaxUploadBytes: 50 << 20,
	}
}

// LoadPrivacyPolicy reads path over the defaults. An empty path returns the defaults.
func LoadPrivacyPolicy(path string) (PrivacyPolicy, error) {
	policy := DefaultPrivacyPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("failed to parse policy file: %w", err)
	}

	for i, term := range policy.PIILexicon {
		policy.PIILexicon[i] = strings.ToLower(strings.TrimSpace(term))
	}
	return policy, nil
}

// Validate checks the policy bounds
func (p PrivacyPolicy) Validate() error {
	if p.SampleSize <= 0 {
		return fmt.Errorf("privacy policy sampleSize must be positive")
	}
	if p.MaxKAnonymity < 0 {
		return fmt.Errorf("privacy policy maxKAnonymity must not be negative")
	}
	if p.PreviewLimit <= 0 {
		return fmt.Errorf("privacy policy previewLimit must be positive")
	}
	if p.RuleCacheSize <= 0 || p.RowsCacheSize <= 0 {
		return fmt.Errorf("privacy policy cache sizes must be positive")
	}
	if p.MaxUploadBytes <= 0 {
		return fmt.Errorf("privacy policy maxUploadBytes must be positive")
	}
	return nil
}
