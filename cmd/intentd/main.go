// Intentd is the runtime execution core daemon: typed intents routed
// through policy-gated capability lookup to realm handlers, saga-tracked
// multi-phase workflows, an append-only tenant-partitioned WAL, and a
// lifecycle-tracked artifact store.
//
// Configuration is loaded from ~/.config/intentd/config.yaml and INTENTD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	intentd
//
//	# Configure via environment
//	INTENTD_STORE_DRIVER=memory INTENTD_LOGGING_LEVEL=debug intentd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/bus"
	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/curator"
	"github.com/fyrsmithlabs/intentd/internal/executor"
	"github.com/fyrsmithlabs/intentd/internal/logging"
	"github.com/fyrsmithlabs/intentd/internal/registry"
	"github.com/fyrsmithlabs/intentd/internal/saga"
	"github.com/fyrsmithlabs/intentd/internal/state"
	"github.com/fyrsmithlabs/intentd/internal/store"
	"github.com/fyrsmithlabs/intentd/internal/telemetry"
	"github.com/fyrsmithlabs/intentd/internal/wal"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  intentd           Start the intentd daemon\n")
			fmt.Fprintf(os.Stderr, "  intentd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}
	log.Println("Daemon shutdown complete")
}

func printVersion() {
	fmt.Printf("intentd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the runtime and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Fields: map[string]string{"service": "intentd", "version": version},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	zlog := logger.Underlying()

	tel, err := telemetry.New(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.Degraded() {
		logger.Warn(ctx, "telemetry degraded, continuing without export")
	}

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store backend: %w", err)
	}
	defer backend.Close()

	var mirror bus.Publisher
	if cfg.NATS.Enabled {
		nc, err := bus.Connect(cfg.NATS.URL, "intentd")
		if err != nil {
			// The mirror is never on the durability path.
			logger.Warn(ctx, "nats unavailable, event mirroring disabled",
				zap.String("url", cfg.NATS.URL), zap.Error(err))
		} else {
			defer nc.Close()
			mirror = nc
		}
	}

	stateSvc, err := state.NewService(backend, zlog.Named("state"))
	if err != nil {
		return fmt.Errorf("create state service: %w", err)
	}

	walSvc, err := wal.NewService(wal.Config{
		RetentionPerTenant: cfg.Runtime.WALRetention,
		BufferSize:         cfg.Runtime.WALBuffer,
	}, backend, mirror, zlog.Named("wal"))
	if err != nil {
		return fmt.Errorf("create wal service: %w", err)
	}

	reg := registry.New(zlog.Named("registry"))

	rules := func() curator.Rules { return curator.Rules{} }
	exec, err := executor.New(reg, rules, zlog.Named("executor"))
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	coordinator, err := saga.NewCoordinator(stateSvc, walSvc, nil, zlog.Named("saga"))
	if err != nil {
		return fmt.Errorf("create saga coordinator: %w", err)
	}

	// Realm plugins register their handlers here; the runtime bundle is
	// what an embedding program receives from this wiring.
	rt := &runtime{
		registry:    reg,
		executor:    exec,
		coordinator: coordinator,
		state:       stateSvc,
		wal:         walSvc,
	}

	logger.Info(ctx, "intentd started",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("nats", mirror != nil),
		zap.Bool("observability", cfg.Observability.Enabled),
		zap.Strings("intent_types", rt.registry.IntentTypes()),
	)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")
	return nil
}

// runtime bundles the wired execution core.
type runtime struct {
	registry    *registry.Registry
	executor    *executor.Executor
	coordinator *saga.Coordinator
	state       *state.Service
	wal         *wal.Service
}

// openBackend creates the configured durable backend.
func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		path, err := config.ExpandHome(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store.OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
