package main

import (
	"context"
	"errors"
	"time"

	"billscan/internal/backend"
	"billscan/internal/cli"
	"billscan/internal/config"
	"billscan/internal/log"
	"billscan/internal/worker"
)

const reaperInterval = time.Minute

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting billscan-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	b := cli.InitBackend(ctx, logger, cfg, backend.WorkerRole)
	defer cli.CloseBackend(logger, b)

	syncWorker := worker.NewSyncWorker(b.Repo, b.Sync, cfg.SyncStaleAfter)

	// The first pass fails jobs left running by a previous crash.
	reaper := worker.NewReaper(syncWorker, reaperInterval)
	if err := reaper.Start(ctx); err != nil {
		logger.Error("Failed to start stale job reaper", "error", err)
		return
	}

	logger.Info("Consuming sync requests", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := b.Broker.ConsumeWithReconnect(ctx, syncWorker.HandleSyncRequest); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
	}

	shutdownCtx, shutdownCancel := cli.ShutdownContext()
	defer shutdownCancel()
	if err := reaper.Stop(shutdownCtx); err != nil {
		logger.Error("Reaper shutdown error", "error", err)
	}

	logger.Info("Worker stopped gracefully")
}
