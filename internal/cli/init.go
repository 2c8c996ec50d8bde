// Package cli holds the startup steps shared by billscan-server and
// billscan-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billscan/internal/backend"
	"billscan/internal/config"
	"billscan/internal/log"
)

// ShutdownTimeout bounds how long a process drains after a signal.
const ShutdownTimeout = 30 * time.Second

// LoadConfig reads the environment, installs the process logger and runs
// validate. It exits the process on validation failure.
func LoadConfig(component string, validate func(*config.Config) error) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat, component)

	if err := validate(cfg); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend wires storage, broker and the sync pipeline for role.
// Returns the backend or exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config, role backend.Role) *backend.Backend {
	backendCfg, err := backend.FromAppConfig(cfg, role)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	b, err := backend.New(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "role", role.String(), "db_path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return b
}

// CloseBackend releases the backend and logs what could not be closed.
func CloseBackend(logger *log.Logger, b *backend.Backend) {
	if err := b.Close(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ShutdownContext bounds the drain that follows a signal.
func ShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ShutdownTimeout)
}
