// Package main is the entry point for the msgflow service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jsamuelsen/msgflow/internal/adapters/eventbus"
	"github.com/jsamuelsen/msgflow/internal/adapters/http"
	"github.com/jsamuelsen/msgflow/internal/adapters/http/handlers"
	"github.com/jsamuelsen/msgflow/internal/adapters/relay"
	"github.com/jsamuelsen/msgflow/internal/adapters/storage/sqlite"
	"github.com/jsamuelsen/msgflow/internal/app"
	"github.com/jsamuelsen/msgflow/internal/messaging"
	"github.com/jsamuelsen/msgflow/internal/platform/config"
	"github.com/jsamuelsen/msgflow/internal/platform/logging"
	"github.com/jsamuelsen/msgflow/internal/platform/telemetry"
	"github.com/jsamuelsen/msgflow/internal/ports"
	"github.com/jsamuelsen/msgflow/internal/unitofwork"
)

// Build-time variables, injected via ldflags.
// Example: go build -ldflags "-X main.Version=1.0.0 -X main.Commit=$(git rev-parse HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the service.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "unknown"

	// BuildTime is the timestamp when the binary was built.
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// 1. Determine profile from environment
	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	// 2. Load and validate configuration (fail fast)
	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	policy, err := unitofwork.ParseRollbackPolicy(cfg.Processing.RollbackPolicy)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 3. Initialize logging
	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
	)

	// 4. Initialize telemetry (noop if disabled)
	telProvider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telProvider.Shutdown(ctx); shutdownErr != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	// 5. Prometheus registry for unit of work metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	uowMetrics, err := telemetry.NewUnitOfWorkMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering unit of work metrics: %w", err)
	}

	// 6. Open the outbox
	store, err := sqlite.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening outbox: %w", err)
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("outbox close error", slog.Any("error", closeErr))
		}
	}()

	healthRegistry := ports.NewHealthRegistry(ports.WithCheckTimeout(cfg.Server.HealthCheckTimeout))
	if err := healthRegistry.Register(store); err != nil {
		return fmt.Errorf("registering outbox health check: %w", err)
	}

	// 7. Units of work: every message, event delivery included, is processed
	// under one created by this factory. Units log through the request logger
	// carried by their context.
	factory := unitofwork.NewFactory(
		unitofwork.WithRollbackPolicy(policy),
		unitofwork.WithMaxDepth(cfg.Processing.MaxNestingDepth),
		unitofwork.WithCorrelationDataProvider(messaging.NewMessageOriginProvider()),
		unitofwork.WithPhaseListener(uowMetrics.Observe, telemetry.TraceListener),
	)

	// 8. Event bus, the projection fed by it and the optional webhook relay
	bus := eventbus.New(factory)
	stats := app.NewStats()
	bus.Subscribe(eventbus.Wildcard, stats)

	if cfg.Relay.Enabled {
		webhook, err := relay.New(relay.Config{
			URL:     cfg.Relay.URL,
			Timeout: cfg.Relay.Timeout,
			Retry:   cfg.Relay.Retry,
			Circuit: cfg.Relay.Circuit,
		})
		if err != nil {
			return fmt.Errorf("creating relay: %w", err)
		}

		if err := healthRegistry.Register(webhook); err != nil {
			return fmt.Errorf("registering relay health check: %w", err)
		}

		bus.Subscribe(eventbus.Wildcard, webhook)
		logger.Info("relaying committed events", slog.String("url", cfg.Relay.URL))
	}

	// 9. Message routing
	dispatcher := app.NewDispatcher()
	if err := app.RegisterBuiltins(dispatcher, store, bus); err != nil {
		return fmt.Errorf("registering handlers: %w", err)
	}

	processor := app.NewProcessor(dispatcher, factory, app.WithTimeout(cfg.Processing.Timeout))

	logger.Info("message handlers registered", slog.Any("names", dispatcher.Names()))

	// 10. Create handlers
	buildInfo := handlers.NewBuildInfo(Version, Commit, BuildTime)
	healthHandler := handlers.NewHealthHandler(healthRegistry, buildInfo, registry)

	// 11. Create HTTP server
	server := http.New(&cfg.Server, logger)

	// 12. Setup router with all middleware and routes
	routerCfg := http.NewRouterConfig(cfg)
	routerCfg.Health = healthHandler
	routerCfg.Messages = handlers.NewMessageHandler(processor, cfg.Processing.Concurrency)
	routerCfg.Events = handlers.NewEventHandler(store, stats, cfg.Storage.ListLimit)
	http.SetupRouter(server.Engine(), routerCfg)

	// 13. Serve until SIGINT or SIGTERM, then drain in-flight messages.
	// Units of work still running finish before the outbox is closed.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(runCtx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("shutdown complete")

	return nil
}
