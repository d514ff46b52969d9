package main

import (
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting recurring-worker",
		"interval", cfg.ProcessorInterval.String(),
		"timezone", cfg.Timezone,
		"backend", cfg.DataBackend)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	b, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", log.FieldError, err)
		os.Exit(1)
	}
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	scheduler := worker.NewRecurringScheduler(cli.NewProcessor(cfg, b), cfg.ProcessorInterval, loc)
	// SIGHUP runs an extra tick, e.g. after rules were edited by hand
	cli.OnReload(ctx, logger, scheduler.Notify)

	if err := scheduler.Run(ctx); err != nil {
		logger.Error("Scheduler stopped", log.FieldError, err)
		b.Cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring worker stopped")
}
