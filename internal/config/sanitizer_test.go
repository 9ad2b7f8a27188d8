package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigSanitizer_RedactsRedisPassword(t *testing.T) {
	s := NewDefaultConfigSanitizer()
	cfg := &Config{Redis: RedisConfig{Password: "s3cret", Addr: "redis:6379"}}

	sanitized := s.Sanitize(cfg)
	assert.Equal(t, "***REDACTED***", sanitized.Redis.Password)
	assert.Equal(t, "redis:6379", sanitized.Redis.Addr, "non-sensitive fields pass through unchanged")
	assert.Equal(t, "s3cret", cfg.Redis.Password, "the original config is left untouched")
}

func TestDefaultConfigSanitizer_EmptyPasswordStaysEmpty(t *testing.T) {
	s := NewDefaultConfigSanitizer()
	cfg := &Config{Redis: RedisConfig{Password: ""}}

	sanitized := s.Sanitize(cfg)
	assert.Empty(t, sanitized.Redis.Password)
}

func TestNewConfigSanitizer_CustomRedactionValue(t *testing.T) {
	s := NewConfigSanitizer("<hidden>")
	cfg := &Config{Redis: RedisConfig{Password: "s3cret"}}

	sanitized := s.Sanitize(cfg)
	assert.Equal(t, "<hidden>", sanitized.Redis.Password)
}

func TestDefaultConfigSanitizer_ReturnsDeepCopy(t *testing.T) {
	s := NewDefaultConfigSanitizer()
	cfg := &Config{Redis: RedisConfig{Password: "s3cret"}}

	sanitized := s.Sanitize(cfg)
	require.NotSame(t, cfg, sanitized)

	sanitized.Redis.Addr = "mutated:1"
	assert.NotEqual(t, sanitized.Redis.Addr, cfg.Redis.Addr)
}
