package backend

import (
	"errors"

	"billscan/internal/amqp"
	"billscan/internal/auth"
	"billscan/internal/cache"
	"billscan/internal/metrics"
	"billscan/internal/services"
	"billscan/internal/storage"
)

// CleanupFunc releases one resource opened by the factory.
type CleanupFunc func() error

// Backend holds the wired collaborators of one process.
type Backend struct {
	Repo    *storage.SQLiteRepository
	Bills   *services.BillService
	Sync    *services.SyncService
	OAuth   *auth.GoogleOAuth
	Metrics *metrics.Metrics
	Caches  *cache.Manager

	// Broker is nil when no AMQP URL is configured; the server then runs
	// syncs in-process.
	Broker *amqp.Client

	cleanups []CleanupFunc
}

func (b *Backend) onClose(fn CleanupFunc) {
	b.cleanups = append(b.cleanups, fn)
}

// Close releases resources in reverse order of creation.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

// Role is the kind of process the backend is built for.
type Role string

const (
	// ServerRole serves HTTP and publishes sync requests, or runs them
	// itself when no broker is configured.
	ServerRole Role = "server"
	// WorkerRole consumes sync requests from the broker.
	WorkerRole Role = "worker"
)

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case ServerRole, WorkerRole:
		return true
	default:
		return false
	}
}
