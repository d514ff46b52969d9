package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	memsheet "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting ledger-sync-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger sync worker")
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	// The worker only reads transactions; it neither publishes nor locks.
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	bc.AMQPURL, bc.RedisAddress = "", ""
	b, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to open backend", log.FieldError, err)
		os.Exit(1)
	}
	defer b.Cleanup()

	var ledger sheets.TransactionWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			LedgerSheet:     cfg.LedgerSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		ledger = client
		logger.Info("Google Sheets ledger enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		ledger = memsheet.New()
		logger.Info("Google Sheets disabled - ledger rows are kept in memory")
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	syncer := worker.NewLedgerSyncWorker(b.Store, ledger)
	err = consumer.ConsumeTransactionCreated(ctx, syncer.HandleTransactionCreated)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		consumer.Close()
		b.Cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger sync worker stopped")
}
