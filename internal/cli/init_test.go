package cli

import (
	"context"
	"errors"
	"io"
	"syscall"
	"testing"
	"time"

	"billscan/internal/log"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Format: "json", Output: io.Discard})
}

func TestSignalContextCancelsOnSignal(t *testing.T) {
	ctx, cancel := SignalContext(quietLogger())
	defer cancel()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}

func TestShutdownContext(t *testing.T) {
	ctx, cancel := ShutdownContext()
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > ShutdownTimeout {
		t.Errorf("deadline = %v, %v", deadline, ok)
	}
	cancel()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("err = %v", ctx.Err())
	}
}
