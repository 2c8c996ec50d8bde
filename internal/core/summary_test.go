package core

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func monthPairs(in []MonthTotal) [][2]string {
	out := make([][2]string, 0, len(in))
	for _, m := range in {
		out = append(out, [2]string{m.Month, m.Total.String()})
	}
	return out
}

func categoryPairs(in []CategoryTotal) [][2]string {
	out := make([][2]string, 0, len(in))
	for _, c := range in {
		out = append(out, [2]string{c.Category, c.Total.String()})
	}
	return out
}

func TestDashboardExample(t *testing.T) {
	bills := sampleBills()

	if got, want := monthPairs(MonthlyTotals(bills)), [][2]string{{"2025-03", "15"}, {"2025-04", "7"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("MonthlyTotals = %v, want %v", got, want)
	}
	if got, want := categoryPairs(CategoryTotals(bills)), [][2]string{{"Utility", "15"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("CategoryTotals = %v, want %v", got, want)
	}
	if got := ids(PartitionByStatus(bills, true)); !reflect.DeepEqual(got, []int64{2}) {
		t.Errorf("paid = %v, want [2]", got)
	}
	if got := ids(PartitionByStatus(bills, false)); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("unpaid = %v, want [1 3]", got)
	}
}

func TestMonthlyTotals(t *testing.T) {
	tests := []struct {
		name  string
		bills []Bill
		want  [][2]string
	}{
		{"empty", nil, [][2]string{}},
		{
			"skips missing date or amount",
			[]Bill{
				{ID: 1, Date: Str("2025-01-10")},
				{ID: 2, Amount: Dec("4")},
				{ID: 3, Date: Str("2025-01-20"), Amount: Dec("2.5")},
			},
			[][2]string{{"2025-01", "2.5"}},
		},
		{
			"sorted ascending regardless of input order",
			[]Bill{
				{ID: 1, Date: Str("2025-12-01"), Amount: Dec("1")},
				{ID: 2, Date: Str("2024-02-01"), Amount: Dec("2")},
				{ID: 3, Date: Str("2025-01-31"), Amount: Dec("3")},
				{ID: 4, Date: Str("2025-12-31"), Amount: Dec("4")},
			},
			[][2]string{{"2024-02", "2"}, {"2025-01", "3"}, {"2025-12", "5"}},
		},
		{
			"negative amounts are summed",
			[]Bill{
				{ID: 1, Date: Str("2025-05-01"), Amount: Dec("10")},
				{ID: 2, Date: Str("2025-05-02"), Amount: Dec("-4")},
			},
			[][2]string{{"2025-05", "6"}},
		},
		{
			"short date is its own key",
			[]Bill{{ID: 1, Date: Str("2025"), Amount: Dec("1")}},
			[][2]string{{"2025", "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := monthPairs(MonthlyTotals(tt.bills)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MonthlyTotals() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonthlyTotalsConservesSum(t *testing.T) {
	bills := []Bill{
		{ID: 1, Date: Str("2025-03-02"), Amount: Dec("10.10")},
		{ID: 2, Date: Str("2025-04-15"), Amount: Dec("5.05")},
		{ID: 3, Date: Str("2025-04-01")},
		{ID: 4, Amount: Dec("100")},
		{ID: 5, Date: Str("2025-06-01"), Amount: Dec("0.85")},
	}

	var total decimal.Decimal
	for _, m := range MonthlyTotals(bills) {
		total = total.Add(m.Total)
	}
	if !total.Equal(decimal.RequireFromString("16")) {
		t.Errorf("sum of monthly totals = %s, want 16", total)
	}
}

func TestCategoryTotals(t *testing.T) {
	bills := []Bill{
		{ID: 1, Category: Str("Water"), Amount: Dec("3")},
		{ID: 2, Category: Str("Power"), Amount: Dec("4")},
		{ID: 3, Category: Str("Water"), Amount: Dec("1.5")},
		{ID: 4, Category: Str("Gas")},
		{ID: 5, Amount: Dec("9")},
	}

	want := [][2]string{{"Water", "4.5"}, {"Power", "4"}}
	if got := categoryPairs(CategoryTotals(bills)); !reflect.DeepEqual(got, want) {
		t.Errorf("CategoryTotals() = %v, want %v", got, want)
	}
}

func TestPartitionByStatus(t *testing.T) {
	bills := []Bill{
		{ID: 1, Status: Str("PAID")},
		{ID: 2},
		{ID: 3, Status: Str("overdue")},
		{ID: 4, Status: Str("paid")},
		{ID: 5, Status: Str("paid ")},
	}

	paid := PartitionByStatus(bills, true)
	unpaid := PartitionByStatus(bills, false)

	if got := ids(paid); !reflect.DeepEqual(got, []int64{1, 4}) {
		t.Errorf("paid = %v, want [1 4]", got)
	}
	if got := ids(unpaid); !reflect.DeepEqual(got, []int64{2, 3, 5}) {
		t.Errorf("unpaid = %v, want [2 3 5]", got)
	}
	if len(paid)+len(unpaid) != len(bills) {
		t.Errorf("partition lost bills: %d + %d != %d", len(paid), len(unpaid), len(bills))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleBills())
	if s.PaidCount != 1 || s.UnpaidCount != 2 {
		t.Errorf("counts = %d/%d, want 1/2", s.PaidCount, s.UnpaidCount)
	}
	if len(s.Monthly) != 2 || len(s.Categories) != 1 {
		t.Errorf("unexpected aggregates: %+v", s)
	}
	if !reflect.DeepEqual(s.Options.Vendors, []string{"Acme", "Beta"}) {
		t.Errorf("vendors = %v", s.Options.Vendors)
	}
}
