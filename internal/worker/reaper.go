package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StaleRecoverer is satisfied by SyncWorker.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context) (int64, error)
}

// Reaper periodically fails stuck sync jobs.
type Reaper struct {
	recoverer StaleRecoverer
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReaper(recoverer StaleRecoverer, interval time.Duration) *Reaper {
	return &Reaper{recoverer: recoverer, interval: interval}
}

// Start runs one recovery pass immediately and then one per interval.
// Returns an error if already running.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	go r.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Stale job reaper started", "interval", r.interval)
	return nil
}

// Stop signals the loop and waits for it or for ctx.
func (r *Reaper) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reaper stop timed out")
		return ctx.Err()
	}
}

func (r *Reaper) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reaper) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reaper) pass(ctx context.Context) {
	if _, err := r.recoverer.RecoverStale(ctx); err != nil {
		slog.ErrorContext(ctx, "Stale job recovery failed", "error", err)
	}
}
