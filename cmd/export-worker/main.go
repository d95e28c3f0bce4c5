package main

import (
	"context"
	"os"
	"time"

	"github.com/hiwllc/tracker/internal/amqp"
	"github.com/hiwllc/tracker/internal/cli"
	gsheet "github.com/hiwllc/tracker/internal/export/google"
	"github.com/hiwllc/tracker/internal/log"
	"github.com/hiwllc/tracker/internal/services"
	"github.com/hiwllc/tracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger().WithComponent(log.ComponentWorker)
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	stores := cli.InitStores(logger, cfg)
	if stores.Cleanup != nil {
		defer stores.Cleanup()
	}

	writer, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets writer", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	transactions := services.NewTransactionService(stores.Transactions, stores.Categories, nil)
	balances := services.NewBalanceService(stores.Balances, nil)
	exportWorker := worker.NewExportWorker(transactions, balances, writer)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		amqpClient.Close()
	})

	go func() {
		err := amqpClient.ConsumeWithReconnect(ctx, func(msg *amqp.DashboardStaleMessage) error {
			return exportWorker.HandleStaleMessage(ctx, msg)
		})
		if err != nil && err != context.Canceled {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	// Periodic refresh covers signals lost while the worker was down.
	// Only the configured user can be refreshed blindly; multi-user
	// deployments rely on the stale signals alone.
	if cfg.User != "" {
		ticker := time.NewTicker(cfg.ExportInterval)
		defer ticker.Stop()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					msg := amqp.NewDashboardStaleMessage(cfg.User)
					if err := exportWorker.HandleStaleMessage(ctx, msg); err != nil {
						logger.Error("Periodic export failed", log.FieldUser, cfg.User, log.FieldError, err)
					}
				}
			}
		}()
	}

	logger.Info("Export worker running",
		"queue", cfg.AMQPQueue,
		"interval", cfg.ExportInterval.String())
	cli.WaitForShutdown(ctx, done)
}
