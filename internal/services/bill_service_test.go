package services

import (
	"context"
	"reflect"
	"testing"
	"time"

	"billscan/internal/cache"
	"billscan/internal/core"
)

func seedBills(store *fakeStore) {
	store.bills[1] = []core.Bill{
		{ID: 1, Vendor: core.Str("Electric Co"), Date: core.Str("2025-03-05"), Amount: core.Dec("10"), Category: core.Str("Utility"), Status: core.Str("unpaid")},
		{ID: 2, Vendor: core.Str("Water Co"), Date: core.Str("2025-03-20"), Amount: core.Dec("5"), Category: core.Str("Utility"), Status: core.Str("Paid")},
		{ID: 3, Vendor: core.Str(""), Date: core.Str("2025-04-01"), Amount: core.Dec("7")},
	}
}

func billIDs(bills []core.Bill) []int64 {
	out := []int64{}
	for _, b := range bills {
		out = append(out, b.ID)
	}
	return out
}

func TestBillServiceList(t *testing.T) {
	store := newFakeStore()
	seedBills(store)
	svc := NewBillService(store, nil)

	paid, unpaid := true, false
	tests := []struct {
		name string
		q    Query
		want []int64
	}{
		{"no filter", Query{}, []int64{1, 2, 3}},
		{"month", Query{Criteria: core.Criteria{Month: core.Str("2025-03")}}, []int64{1, 2}},
		{"empty vendor is a value", Query{Criteria: core.Criteria{Vendor: core.Str("")}}, []int64{3}},
		{"paid", Query{Paid: &paid}, []int64{2}},
		{"unpaid in category", Query{Criteria: core.Criteria{Category: core.Str("Utility")}, Paid: &unpaid}, []int64{1}},
		{"no match", Query{Criteria: core.Criteria{Vendor: core.Str("Gas Co")}}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(context.Background(), 1, tt.q)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got == nil {
				t.Fatal("List returned nil slice")
			}
			if ids := billIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestBillServiceSummary(t *testing.T) {
	store := newFakeStore()
	seedBills(store)
	svc := NewBillService(store, nil)

	sum, err := svc.Summary(context.Background(), 1, core.Criteria{Month: core.Str("2025-03")})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.Monthly) != 1 || sum.Monthly[0].Month != "2025-03" || sum.Monthly[0].Total.String() != "15" {
		t.Errorf("monthly = %+v", sum.Monthly)
	}
	if len(sum.Categories) != 1 || sum.Categories[0].Total.String() != "15" {
		t.Errorf("categories = %+v", sum.Categories)
	}
	if sum.PaidCount != 1 || sum.UnpaidCount != 1 {
		t.Errorf("paid/unpaid = %d/%d", sum.PaidCount, sum.UnpaidCount)
	}
	wantVendors := []string{"Electric Co", "Water Co", ""}
	if !reflect.DeepEqual(sum.Options.Vendors, wantVendors) {
		t.Errorf("vendors = %q, want options from the whole list %q", sum.Options.Vendors, wantVendors)
	}
}

func TestBillServiceCache(t *testing.T) {
	store := newFakeStore()
	seedBills(store)
	svc := NewBillService(store, cache.NewLRUCache[int64, []core.Bill](10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.List(ctx, 1, Query{}); err != nil {
			t.Fatalf("List: %v", err)
		}
	}
	if _, err := svc.Summary(ctx, 1, core.Criteria{}); err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if store.listCalls != 1 {
		t.Errorf("store loaded %d times, want 1", store.listCalls)
	}

	store.bills[1] = store.bills[1][:1]
	svc.Invalidate(1)

	got, err := svc.List(ctx, 1, Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || store.listCalls != 2 {
		t.Errorf("after invalidate got %d bills with %d loads", len(got), store.listCalls)
	}
}

// invalidatingStore runs during after reading, as a sync finishing mid-load would.
type invalidatingStore struct {
	*fakeStore
	during func()
}

func (s *invalidatingStore) ListBills(ctx context.Context, userID int64) ([]core.Bill, error) {
	out, err := s.fakeStore.ListBills(ctx, userID)
	if s.during != nil {
		s.during()
	}
	return out, err
}

func TestBillServiceSkipsCachingRacedLoad(t *testing.T) {
	fake := newFakeStore()
	seedBills(fake)
	store := &invalidatingStore{fakeStore: fake}
	svc := NewBillService(store, cache.NewLRUCache[int64, []core.Bill](10, time.Minute))
	ctx := context.Background()

	store.during = func() { svc.Invalidate(1) }
	if _, err := svc.List(ctx, 1, Query{}); err != nil {
		t.Fatalf("List: %v", err)
	}

	store.during = nil
	fake.bills[1] = fake.bills[1][:1]
	got, err := svc.List(ctx, 1, Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || fake.listCalls != 2 {
		t.Errorf("stale snapshot served: %d bills after %d loads", len(got), fake.listCalls)
	}

	if _, err := svc.List(ctx, 1, Query{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if fake.listCalls != 2 {
		t.Errorf("undisturbed load should be cached, loads = %d", fake.listCalls)
	}
}
