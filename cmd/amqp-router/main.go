package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/maxpert/amqp-router/config"
	"github.com/maxpert/amqp-router/interfaces"
	"github.com/maxpert/amqp-router/logging"
	"github.com/maxpert/amqp-router/metrics"
	"github.com/maxpert/amqp-router/server"
	"github.com/maxpert/amqp-router/storage"
	"github.com/maxpert/amqp-router/transport"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

type options struct {
	configFile     string
	generateConfig string
	showVersion    bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	flags := pflag.NewFlagSet("amqp-router", pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVarP(&opts.configFile, "config", "c", "", "Configuration file path (YAML/JSON)")
	flags.StringVar(&opts.generateConfig, "generate-config", "", "Generate default config file and exit (e.g., router.yaml)")
	flags.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	if opts.showVersion {
		fmt.Printf("amqp-router version %s\n", version)
		return 0
	}

	if opts.generateConfig != "" {
		if err := config.DefaultNodeConfig().Save(opts.generateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config file: %v\n", err)
			return 1
		}
		fmt.Printf("Generated default configuration: %s\n", opts.generateConfig)
		return 0
	}

	cfg := config.DefaultNodeConfig()
	if opts.configFile != "" {
		if err := cfg.Load(opts.configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration file %s: %v\n", opts.configFile, err)
			return 1
		}
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		if errors.Is(err, server.ErrInitialListen) {
			log.Error("Unable to listen on the initial configuration", zap.Error(err))
		} else {
			log.Error("Router stopped", zap.Error(err))
		}
		return 1
	}
	return 0
}

// serve runs the node until ctx is cancelled
func serve(ctx context.Context, cfg *config.NodeConfig, log *zap.Logger) error {
	builder := server.NewManagerBuilder().
		WithTransport(transport.New(log)).
		WithLogger(log).
		WithExitOnInitialListenFailure(cfg.ExitOnInitialListenFailure)

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector("router")
		metricsServer := metrics.NewServer(cfg.Metrics.Address, collector, log)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			metricsServer.Stop(stopCtx)
		}()
		builder = builder.WithMetrics(collector)
	}

	if cfg.Snapshot.Enabled {
		store, err := storage.NewFileSnapshotStore(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		pruneSnapshots(log, store)
		builder = builder.WithSnapshotStore(store)
	}

	manager, err := builder.Build()
	if err != nil {
		return err
	}

	if err := manager.Apply(cfg); err != nil {
		log.Warn("Configuration applied with errors", zap.Error(err))
	}

	if err := manager.Start(); err != nil {
		manager.Close()
		return err
	}
	log.Info("Router started",
		zap.String("version", version),
		zap.Int("listeners", len(manager.Listeners())),
		zap.Int("connectors", len(manager.Connectors())))

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return manager.Shutdown(shutdownCtx)
}

// pruneSnapshots reports and removes the snapshots left by an earlier run.
// Entity IDs are assigned per run, so nothing in this run refers to them.
func pruneSnapshots(log *zap.Logger, store interfaces.SnapshotStore) {
	snapshots, err := store.List()
	if err != nil {
		log.Warn("Unable to list snapshots", zap.Error(err))
		return
	}
	for _, snapshot := range snapshots {
		log.Info("Removing snapshot from earlier run",
			zap.String("kind", snapshot.Kind),
			zap.String("id", snapshot.ID),
			zap.String("name", snapshot.Name),
			zap.Time("updated_at", snapshot.UpdatedAt),
			zap.Any("attributes", snapshot.Attributes))
		if err := store.Delete(snapshot.Kind, snapshot.ID); err != nil {
			log.Warn("Unable to remove snapshot", zap.String("id", snapshot.ID), zap.Error(err))
		}
	}
}
