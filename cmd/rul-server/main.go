package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nwcai/pm-rul/internal/adapter/fleetfile"
	"github.com/nwcai/pm-rul/internal/adapter/restapi"
	"github.com/nwcai/pm-rul/internal/api"
	"github.com/nwcai/pm-rul/internal/config"
	"github.com/nwcai/pm-rul/internal/logging"
	"github.com/nwcai/pm-rul/internal/notify"
	"github.com/nwcai/pm-rul/internal/observability"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/scheduler"
	"github.com/nwcai/pm-rul/internal/storage/sqlite"
)

func main() {
	// Parse flags
	cfg := parseFlags()

	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// run wires the components and serves until a signal or a server error.
// Every deferred close runs before it returns.
func run(cfg config.Config) error {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting RUL server",
		"port", cfg.Port,
		"source", cfg.SourceType,
		"refresh_interval", cfg.RefreshInterval,
		"warning", cfg.WarningThreshold,
		"critical", cfg.CriticalThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create data source
	var source projector.DataSource
	var fleet *fleetfile.Source
	switch cfg.SourceType {
	case config.SourceREST:
		restConfig := restapi.DefaultConfig(cfg.APIBaseURL)
		restConfig.Timeout = cfg.APITimeout
		source = restapi.NewAdapter(restConfig)
		slog.Info("using REST source", "url", cfg.APIBaseURL)

	case config.SourceFleet:
		var err error
		fleet, err = fleetfile.NewSource(cfg.FleetDirectory)
		if err != nil {
			return fmt.Errorf("failed to load fleet: %w", err)
		}
		source = fleet
		slog.Info("using fleet directory", "dir", cfg.FleetDirectory, "machines", fleet.Size())
	}

	metrics := observability.NewMetrics()

	// Create projector and scheduler
	p := projector.New(source, policy.NewEngine(cfg.Thresholds()),
		projector.WithModelOptions(cfg.ModelOptions()...),
		projector.WithWorkers(cfg.Workers),
		projector.WithObserver(metrics))

	sched := scheduler.NewScheduler(p, cfg.RefreshInterval)
	sched.SetMetrics(metrics)

	if cfg.DBPath != "" {
		store, err := sqlite.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer closeLogged("history database", store)
		sched.SetHistoryStorage(store)
		slog.Info("history enabled", "db", cfg.DBPath)
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(brokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer closeLogged("kafka publisher", publisher)
		sched.SetPublisher(publisher)
		slog.Info("status changes published", "brokers", brokers, "topic", cfg.KafkaTopic)
	}

	// Start scheduler
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	if fleet != nil && cfg.WatchFleet {
		defer startWatch(ctx, fleet, sched.Trigger)()
	}

	// Create and start HTTP server
	apiServer := api.NewServer(sched, metrics, cfg.Addr(), cfg.Origins())

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		slog.Info("received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer shutdownCancel()

		slog.Info("shutting down server")
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down server", "err", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

func closeLogged(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("failed to close "+name, "err", err)
	}
}

// startWatch reloads the fleet on file changes and triggers a refresh. The
// returned func blocks until the watcher has exited.
func startWatch(ctx context.Context, fleet *fleetfile.Source, onReload func()) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := fleet.Watch(ctx, onReload)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("fleet watcher stopped", "err", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func parseFlags() config.Config {
	cfg := config.DefaultConfig()

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "HTTP server host")
	flag.StringVar(&cfg.SourceType, "source", cfg.SourceType, "Machine data source (fleet|rest)")
	flag.StringVar(&cfg.FleetDirectory, "fleet-dir", cfg.FleetDirectory, "Directory containing machine YAML files")
	flag.BoolVar(&cfg.WatchFleet, "watch", cfg.WatchFleet, "Reload the fleet directory on file changes")
	flag.StringVar(&cfg.APIBaseURL, "api-url", cfg.APIBaseURL, "Machine API base URL (required for rest source)")
	flag.DurationVar(&cfg.APITimeout, "api-timeout", cfg.APITimeout, "Machine API request timeout")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite history database path (empty disables history)")
	flag.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "Fleet projection refresh interval")
	flag.Float64Var(&cfg.WarningThreshold, "warning", cfg.WarningThreshold, "Warning threshold (%)")
	flag.Float64Var(&cfg.CriticalThreshold, "critical", cfg.CriticalThreshold, "Critical threshold (%)")
	flag.Float64Var(&cfg.Step, "step", cfg.Step, "Projection sampling step in hours")
	flag.Float64Var(&cfg.MarkerTolerance, "marker-tolerance", cfg.MarkerTolerance, "Maximum distance in hours between an event and its marker sample")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent projections during a fleet refresh")
	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "Comma-separated Kafka brokers for status change events")
	flag.StringVar(&cfg.KafkaTopic, "kafka-topic", cfg.KafkaTopic, "Kafka topic for status change events")
	flag.StringVar(&cfg.AllowedOrigins, "cors-origins", cfg.AllowedOrigins, "Comma-separated CORS origins (empty disables CORS)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug|info|warn|error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text|json)")
	flag.DurationVar(&cfg.GracefulShutdownTimeout, "shutdown-timeout", cfg.GracefulShutdownTimeout, "Graceful shutdown timeout")

	flag.Parse()

	return cfg
}
