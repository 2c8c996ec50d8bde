package main

import (
	"errors"
	"net/http"
	"time"

	"billscan/internal/auth"
	"billscan/internal/backend"
	"billscan/internal/cli"
	"billscan/internal/config"
	"billscan/internal/log"
	apphttp "billscan/internal/http"
	"billscan/internal/worker"
)

const reaperInterval = time.Minute

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentHTTP, (*config.Config).Validate)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	b := cli.InitBackend(ctx, logger, cfg, backend.ServerRole)
	defer cli.CloseBackend(logger, b)

	// Without a broker this process runs syncs, so it also fails stuck ones.
	var reaper *worker.Reaper
	if b.Broker == nil {
		reaper = worker.NewReaper(worker.NewSyncWorker(b.Repo, b.Sync, cfg.SyncStaleAfter), reaperInterval)
		if err := reaper.Start(ctx); err != nil {
			logger.Error("Failed to start stale job reaper", "error", err)
			return
		}
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            ":" + cfg.Port,
		FrontendURL:     cfg.FrontendURL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	}, apphttp.Deps{
		Users:   b.Repo,
		Bills:   b.Bills,
		Sync:    b.Sync,
		OAuth:   b.OAuth,
		JWT:     auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry()),
		Metrics: b.Metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting billscan server", "port", cfg.Port, "in_process_sync", b.Broker == nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server error", "error", err, "port", cfg.Port)
	}

	shutdownCtx, shutdownCancel := cli.ShutdownContext()
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if reaper != nil {
		if err := reaper.Stop(shutdownCtx); err != nil {
			logger.Error("Reaper shutdown error", "error", err)
		}
	}
	// In-process syncs finish before the database closes.
	b.Sync.Wait()

	logger.Info("Server stopped gracefully")
}
