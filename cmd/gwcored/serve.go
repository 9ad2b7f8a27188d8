package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/gwcore/internal/admin"
	"github.com/vitaliisemenov/gwcore/internal/config"
	"github.com/vitaliisemenov/gwcore/internal/discovery"
	"github.com/vitaliisemenov/gwcore/internal/dispatch"
	"github.com/vitaliisemenov/gwcore/internal/gwerrors"
	"github.com/vitaliisemenov/gwcore/internal/health"
	"github.com/vitaliisemenov/gwcore/internal/server"
	"github.com/vitaliisemenov/gwcore/internal/trie"
	"github.com/vitaliisemenov/gwcore/pkg/logger"
	"github.com/vitaliisemenov/gwcore/pkg/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch core and admin surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("gwcored: load config: %w", err)
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	log.Info("starting gwcored", "app", cfg.App.Name, "version", cfg.App.Version, "env", cfg.App.Environment)

	watcher, err := config.NewFileWatcher(cfg.Routes.Path)
	if err != nil {
		return fmt.Errorf("gwcored: start route watcher: %w", err)
	}

	manager := trie.NewManager(watcher, func(perr *gwerrors.PredicateError) {
		log.Warn("route dropped from trie build", "err", perr)
	})

	store, err := buildHealthStore(cfg, log)
	if err != nil {
		return fmt.Errorf("gwcored: build health store: %w", err)
	}
	healthRegistry := health.NewRegistry(store, log)

	reg := metrics.NewMetricsRegistry(cfg.App.Name)
	healthRegistry.Observe(reg.Health(), reg.Cache())

	var oracle discovery.Oracle
	if cfg.Discovery.Enabled {
		k8sOracle, err := discovery.NewK8sOracle(&discovery.K8sOracleConfig{
			Namespace:       cfg.Discovery.Namespace,
			Timeout:         cfg.Discovery.Timeout,
			MaxRetries:      cfg.Discovery.MaxRetries,
			RetryBackoff:    cfg.Discovery.RetryBackoff,
			MaxRetryBackoff: cfg.Discovery.MaxRetryBackoff,
			Logger:          log,
		})
		if err != nil {
			return fmt.Errorf("gwcored: start discovery oracle: %w", err)
		}
		k8sOracle.Observe(reg.Discovery())
		oracle = k8sOracle
	}

	dispatcher := dispatch.NewDispatcher(oracle, healthRegistry)
	dispatcher.Observe(reg.Cache(), reg.Health())

	frontDoor := server.New(manager, dispatcher, reg, log)
	httpServer := server.NewHTTPServer(server.Config{
		Host:                    cfg.Server.Host,
		Port:                    portString(cfg.Server.Port),
		ReadTimeout:             cfg.Server.ReadTimeout,
		WriteTimeout:            cfg.Server.WriteTimeout,
		IdleTimeout:             cfg.Server.IdleTimeout,
		GracefulShutdownTimeout: cfg.Server.GracefulShutdownTimeout,
	}, reg.HTTP().Middleware(frontDoor))

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer = admin.NewHTTPServer(admin.Config{
			Host: cfg.Admin.Host,
			Port: portString(cfg.Admin.Port),
		}, admin.Deps{
			Trie:           manager,
			Health:         healthRegistry,
			Watcher:        watcher,
			Logger:         log,
			MetricsHandler: reg.HTTP().Handler(),
		})
	}

	return runUntilSignal(log, cfg.Server.GracefulShutdownTimeout, httpServer, adminServer)
}

func buildHealthStore(cfg *config.Config, log *slog.Logger) (health.Store, error) {
	if cfg.Health.Backend != "redis" {
		return health.NewLocalStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.Addr,
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		DialTimeout:     cfg.Redis.DialTimeout,
		ReadTimeout:     cfg.Redis.ReadTimeout,
		WriteTimeout:    cfg.Redis.WriteTimeout,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: cfg.Redis.MinRetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	ttl := cfg.Health.RedisKeyTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return health.NewRedisStore(client, ttl), nil
}

// runUntilSignal starts both listeners and blocks until SIGINT/SIGTERM,
// then drains each within timeout — the teacher's cmd/server/main.go
// signal/shutdown idiom, extended to a second listener.
func runUntilSignal(log *slog.Logger, timeout time.Duration, front, adminSrv *http.Server) error {
	errCh := make(chan error, 2)

	go func() {
		log.Info("dispatch listener starting", "addr", front.Addr)
		if err := front.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dispatch listener: %w", err)
		}
	}()

	if adminSrv != nil {
		go func() {
			log.Info("admin listener starting", "addr", adminSrv.Addr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin listener: %w", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		log.Error("listener failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := front.Shutdown(ctx); err != nil {
		log.Error("dispatch listener forced shutdown", "err", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			log.Error("admin listener forced shutdown", "err", err)
		}
	}

	log.Info("gwcored exited")
	return nil
}

func portString(port int) string {
	return fmt.Sprintf("%d", port)
}
