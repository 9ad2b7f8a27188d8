package config

import (
	"encoding/json"
)

// ConfigSanitizer redacts sensitive fields before a Config is logged.
type ConfigSanitizer interface {
	Sanitize(cfg *Config) *Config
}

// DefaultConfigSanitizer implements ConfigSanitizer.
type DefaultConfigSanitizer struct {
	redactionValue string
}

// NewDefaultConfigSanitizer creates a DefaultConfigSanitizer using the
// standard redaction placeholder.
func NewDefaultConfigSanitizer() ConfigSanitizer {
	return &DefaultConfigSanitizer{redactionValue: "***REDACTED***"}
}

// NewConfigSanitizer creates a ConfigSanitizer with a custom redaction
// value.
func NewConfigSanitizer(redactionValue string) ConfigSanitizer {
	return &DefaultConfigSanitizer{redactionValue: redactionValue}
}

// Sanitize returns a deep copy of cfg with the Redis password redacted.
func (s *DefaultConfigSanitizer) Sanitize(cfg *Config) *Config {
	sanitized := s.deepCopy(cfg)
	if sanitized.Redis.Password != "" {
		sanitized.Redis.Password = s.redactionValue
	}
	return sanitized
}

func (s *DefaultConfigSanitizer) deepCopy(cfg *Config) *Config {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copy Config
	if err := json.Unmarshal(raw, &copy); err != nil {
		return cfg
	}
	return &copy
}
