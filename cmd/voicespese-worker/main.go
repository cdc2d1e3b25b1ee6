package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"voicespese/internal/amqp"
	"voicespese/internal/cli"
	"voicespese/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting voicespese-worker", "ledger", cfg.LedgerBackend)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	mirror, err := cli.NewLedger(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize ledger", "error", err, "backend", cfg.LedgerBackend)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// The worker only reads, so publishing stays off.
	expenses := cli.NewExpenseService(repo, nil, cfg)
	w := worker.NewLedgerWorker(expenses, mirror)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx, client)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
