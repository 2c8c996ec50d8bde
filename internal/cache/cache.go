package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is the subset of LRUCache the services depend on.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic cleanup over a set of caches.
type Manager struct {
	mu       sync.Mutex
	caches   map[string]Cleaner
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager() *Manager {
	return &Manager{
		caches: make(map[string]Cleaner),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds a named cache to the cleanup loop.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// CleanAll drops expired entries from every registered cache.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.Debug("Cache cleanup completed", "cache", name, "entries_removed", n)
			total += n
		}
	}
	return total
}

// StartCleanup begins periodic cleanup until Stop is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	go func() {
		defer close(m.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CleanAll()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop started by StartCleanup and waits for it.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		select {
		case <-m.done:
		case <-time.After(time.Second):
		}
	})
}
