package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	lc.Component = component
	if component == log.ComponentCLI {
		// stdout belongs to command output
		lc.Output = os.Stderr
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// OpenBackend wires the configured store, notifier and lock.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bc)
}

// NewProcessor builds the processor over an opened backend.
func NewProcessor(cfg *config.Config, b *backend.BackendResult) *services.RecurringProcessor {
	return services.NewRecurringProcessor(b.Store,
		services.WithNotifier(b.Notifier),
		services.WithLocker(b.Locker),
		services.WithStorageTimeout(cfg.StorageTimeout))
}

// BackendOpener returns an Opener backed by the configured backend.
func BackendOpener(cfg *config.Config, logger *log.Logger) Opener {
	return func(ctx context.Context) (*Deps, func() error, error) {
		loc, err := cfg.Location()
		if err != nil {
			return nil, nil, err
		}
		b, err := OpenBackend(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		deps := &Deps{
			Rules:     services.NewRuleService(b.Store, cfg.StorageTimeout),
			Processor: NewProcessor(cfg, b),
			Location:  loc,
			Now:       time.Now,
		}
		return deps, b.Cleanup, nil
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// OnReload calls fn for every SIGHUP until ctx is done.
func OnReload(ctx context.Context, logger *log.Logger, fn func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("Reload signal received")
				fn()
			}
		}
	}()
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
