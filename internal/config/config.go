package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the ambient (non-route) configuration for the gwcored
// binary: listen addresses, logging, cache sizing overrides, default
// health thresholds, discovery, and the Redis connection backing the
// health checker's shared state. Route and upstream configuration is
// not part of this struct — it is loaded separately and published
// through a routestore.Watcher (see filewatcher.go).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Health    HealthConfig    `mapstructure:"health"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Redis     RedisConfig     `mapstructure:"redis"`
	App       AppConfig       `mapstructure:"app"`
	Routes    RoutesConfig    `mapstructure:"routes"`
}

// ServerConfig holds the dispatch core's own listener settings.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// AdminConfig holds the read-only introspection surface's listener.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Host    string `mapstructure:"host"`
}

// RedisConfig configures the optional Redis-backed health.Store for
// multi-process deployments (spec §4.3 "Shared state backends").
type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// LogConfig holds logging-related configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// CacheConfig holds capacity/TTL settings for the picker, checker, and
// address caches (spec §4.5). The values are loaded and defaulted here
// but not passed to the caches, which are built with fixed capacities
// and TTLs in internal/dispatch and internal/health.
type CacheConfig struct {
	PickerCapacity  int           `mapstructure:"picker_capacity"`
	PickerTTL       time.Duration `mapstructure:"picker_ttl"`
	CheckerCapacity int           `mapstructure:"checker_capacity"`
	CheckerTTL      time.Duration `mapstructure:"checker_ttl"`
	AddressCapacity int           `mapstructure:"address_capacity"`
	AddressTTL      time.Duration `mapstructure:"address_ttl"`
}

// HealthConfig selects the health.Store backend and its Redis key TTL
// (spec §4.3). DefaultActiveInterval and DefaultTimeout are loaded and
// defaulted but not applied to any upstream's Checks.
type HealthConfig struct {
	Backend               string        `mapstructure:"backend"` // "local" or "redis"
	DefaultActiveInterval time.Duration `mapstructure:"default_active_interval"`
	DefaultTimeout        time.Duration `mapstructure:"default_timeout"`
	RedisKeyTTL           time.Duration `mapstructure:"redis_key_ttl"`
}

// DiscoveryConfig configures the Kubernetes Endpoints oracle (spec §9.3).
type DiscoveryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Namespace       string        `mapstructure:"namespace"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

// AppConfig holds process-identity metadata used in logs and the admin
// surface.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// RoutesConfig points at the route/upstream definition file watched by
// the file-backed routestore.Watcher.
type RoutesConfig struct {
	Path string `mapstructure:"path"`
}

// LoadConfig loads configuration from file and environment variables,
// in the same precedence order (file, then env override) the teacher's
// LoadConfig used.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.port", 8081)
	viper.SetDefault("admin.host", "127.0.0.1")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.min_retry_backoff", "100ms")
	viper.SetDefault("redis.max_retry_backoff", "500ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("cache.picker_capacity", 256)
	viper.SetDefault("cache.picker_ttl", "300s")
	viper.SetDefault("cache.checker_capacity", 256)
	viper.SetDefault("cache.checker_ttl", "300s")
	viper.SetDefault("cache.address_capacity", 4096)
	viper.SetDefault("cache.address_ttl", "300s")

	viper.SetDefault("health.backend", "local")
	viper.SetDefault("health.default_active_interval", "10s")
	viper.SetDefault("health.default_timeout", "2s")
	viper.SetDefault("health.redis_key_ttl", "60s")

	viper.SetDefault("discovery.enabled", false)
	viper.SetDefault("discovery.namespace", "default")
	viper.SetDefault("discovery.timeout", "30s")
	viper.SetDefault("discovery.max_retries", 3)
	viper.SetDefault("discovery.retry_backoff", "100ms")
	viper.SetDefault("discovery.max_retry_backoff", "5s")

	viper.SetDefault("app.name", "gwcored")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("routes.path", "routes.yaml")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}
	if c.Health.Backend != "local" && c.Health.Backend != "redis" {
		return fmt.Errorf("invalid health backend: %s", c.Health.Backend)
	}
	if c.Routes.Path == "" {
		return fmt.Errorf("routes path cannot be empty")
	}
	return nil
}
