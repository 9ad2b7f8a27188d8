package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_AppliesDefaultsWithNoFile(t *testing.T) {
	viper.Reset()
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "local", cfg.Health.Backend)
	assert.Equal(t, "routes.yaml", cfg.Routes.Path)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "gwcored.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nhealth:\n  backend: redis\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Health.Backend)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "fields absent from the file keep their default")
}

func TestLoadConfig_MissingFileIsNotAnError(t *testing.T) {
	viper.Reset()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
}

func TestLoadConfig_InvalidHealthBackendFailsValidation(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	path := filepath.Join(dir, "gwcored.yaml")
	require.NoError(t, os.WriteFile(path, []byte("health:\n  backend: memcached\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080, Host: "0.0.0.0"},
			Admin:  AdminConfig{Enabled: true, Port: 8081},
			Health: HealthConfig{Backend: "local"},
			Routes: RoutesConfig{Path: "routes.yaml"},
		}
	}

	assert.NoError(t, valid().Validate())

	bad := valid()
	bad.Server.Port = 0
	assert.Error(t, bad.Validate())

	bad = valid()
	bad.Server.Host = ""
	assert.Error(t, bad.Validate())

	bad = valid()
	bad.Admin.Port = 70000
	assert.Error(t, bad.Validate())

	bad = valid()
	bad.Health.Backend = "memcached"
	assert.Error(t, bad.Validate())

	bad = valid()
	bad.Routes.Path = ""
	assert.Error(t, bad.Validate())
}
