package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"billscan/internal/cache"
	"billscan/internal/core"
)

// BillStore loads the stored bills of a user.
type BillStore interface {
	ListBills(ctx context.Context, userID int64) ([]core.Bill, error)
}

// Query selects bills for the list view. A nil Paid keeps both paid and
// unpaid bills.
type Query struct {
	Criteria core.Criteria
	Paid     *bool
}

// BillService serves filtered bill lists and dashboard summaries from a
// per-user snapshot cache.
type BillService struct {
	store BillStore
	cache cache.Cache[int64, []core.Bill]

	// generations counts invalidations per user. A load that raced an
	// invalidation is not cached.
	mu          sync.Mutex
	generations map[int64]uint64
}

// NewBillService creates the service. A nil cache disables caching.
func NewBillService(store BillStore, c cache.Cache[int64, []core.Bill]) *BillService {
	return &BillService{store: store, cache: c, generations: make(map[int64]uint64)}
}

func (s *BillService) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[userID]
}

// bills returns the user's full snapshot. The cached slice is shared and
// must not be modified.
func (s *BillService) bills(ctx context.Context, userID int64) ([]core.Bill, error) {
	if s.cache != nil {
		if all, ok := s.cache.Get(userID); ok {
			return all, nil
		}
	}

	gen := s.generation(userID)
	all, err := s.store.ListBills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	if s.cache != nil {
		s.mu.Lock()
		if s.generations[userID] == gen {
			s.cache.Set(userID, all)
		}
		s.mu.Unlock()
	}
	slog.DebugContext(ctx, "Loaded bill snapshot", "user_id", userID, "count", len(all))
	return all, nil
}

// List returns the user's bills matching q, in stored order.
func (s *BillService) List(ctx context.Context, userID int64, q Query) ([]core.Bill, error) {
	all, err := s.bills(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := core.Filter(all, q.Criteria)
	if q.Paid != nil {
		out = core.PartitionByStatus(out, *q.Paid)
	}
	if out == nil {
		out = []core.Bill{}
	}
	return out, nil
}

// Summary aggregates the bills matching c. Filter options always list the
// values of the whole snapshot so a selection can be widened again.
func (s *BillService) Summary(ctx context.Context, userID int64, c core.Criteria) (core.Summary, error) {
	all, err := s.bills(ctx, userID)
	if err != nil {
		return core.Summary{}, err
	}

	sum := core.Summarize(core.Filter(all, c))
	sum.Options = core.Options(all)
	return sum, nil
}

// Invalidate drops the user's snapshot so the next read reloads it whole.
func (s *BillService) Invalidate(userID int64) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[userID]++
	s.cache.Delete(userID)
}
