package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/advtxt/advtxt-db-mongo/pkg/config"
	"github.com/advtxt/advtxt-db-mongo/pkg/health"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/logger"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/metrics"
	"github.com/advtxt/advtxt-db-mongo/pkg/observability/tracing"
	"github.com/advtxt/advtxt-db-mongo/pkg/store"
	"github.com/advtxt/advtxt-db-mongo/pkg/version"
)

// LifecycleHook is a named startup or shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunOptions holds the inputs for Run.
type RunOptions struct {
	Config *config.Config
	Logger logger.Logger

	// Store, when set, is registered as the "mongodb" readiness check. Run
	// closes it on every return path, after the shutdown hooks.
	Store store.Adapter

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration

	// OnReady is called with the management server once it has been built,
	// before it starts listening.
	OnReady func(*ManagementServer)
}

// Run serves the management endpoints until ctx is cancelled or a server
// fails. Shutdown hooks run afterwards, followed by closing the store.
func Run(ctx context.Context, opts *RunOptions) error {
	if opts != nil && opts.Store != nil {
		defer closeStore(opts.Store, opts.Logger)
	}
	if opts == nil || opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	info := version.Current(serviceName(opts.Config))
	opts.Logger.Info("application version metadata",
		"service", info.Service,
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
	)

	tracerCfg := tracing.ConfigFrom(opts.Config, info.Version)
	tracerCfg.ServiceName = info.Service
	tracerCfg.Environment = normalizeEnvironment(tracerCfg.Environment)
	tracerProvider, err := tracing.NewTracerProvider(ctx, tracerCfg)
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	defer shutdownTracerProvider(tracerProvider, opts.Logger)

	healthRegistry := opts.HealthRegistry
	if healthRegistry == nil {
		healthRegistry = health.NewRegistry()
	}
	metricsRegistry := opts.MetricsRegistry
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}

	if opts.Store != nil {
		healthRegistry.Register(health.NewAdapterChecker(string(config.AdapterMongoDB), opts.Store, 0))
	}

	if err := runStartupHooks(ctx, opts.Logger, opts.StartupHooks); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := runShutdownHooks(opts.Logger, opts.ShutdownHooks, opts.ShutdownHookTimeout); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()

	if !opts.Config.Management.Enabled {
		opts.Logger.Info("management server disabled")
		<-ctx.Done()
		return nil
	}

	management := NewManagementServer(opts.Config.Management, opts.Logger, healthRegistry, metricsRegistry, info)
	if opts.OnReady != nil {
		opts.OnReady(management)
	}
	return management.Start(ctx)
}

// RunWithSignals runs with cancellation on SIGINT and SIGTERM, or on the
// given signals.
func RunWithSignals(opts *RunOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()
	return Run(ctx, opts)
}

func closeStore(st store.Adapter, log logger.Logger) {
	if err := st.Close(); err != nil && log != nil {
		log.Error("failed to close store", "error", err)
	}
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func normalizeEnvironment(env string) string {
	trimmed := strings.TrimSpace(env)
	if trimmed == "" {
		return version.Unknown
	}
	return trimmed
}

func serviceName(cfg *config.Config) string {
	if trimmed := strings.TrimSpace(cfg.Service.Name); trimmed != "" {
		return trimmed
	}
	return version.Unknown
}

func hookName(name string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return "unnamed"
}

func runStartupHooks(ctx context.Context, log logger.Logger, hooks []LifecycleHook) error {
	for _, hook := range hooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook.Name)
		log.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			log.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		log.Info("startup hook complete", "hook", name)
	}
	return nil
}

func runShutdownHooks(log logger.Logger, hooks []LifecycleHook, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var errs []error
	for _, hook := range hooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook.Name)
		log.Info("shutdown hook start", "hook", name)

		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(hookCtx)
		cancel()

		if err != nil {
			log.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		log.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}
