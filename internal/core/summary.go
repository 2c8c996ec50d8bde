package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MonthTotal is the summed amount of all bills dated in one month.
type MonthTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// CategoryTotal is the summed amount of all bills in one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// Summary is everything the dashboard charts need for one bill list.
type Summary struct {
	Monthly     []MonthTotal    `json:"monthly"`
	Categories  []CategoryTotal `json:"categories"`
	Options     FilterOptions   `json:"options"`
	PaidCount   int             `json:"paid_count"`
	UnpaidCount int             `json:"unpaid_count"`
}

// MonthKey returns the YYYY-MM prefix of a date. Shorter strings are
// returned unchanged.
func MonthKey(date string) string {
	if len(date) < 7 {
		return date
	}
	return date[:7]
}

// MonthlyTotals sums amounts per month, ascending by month. Bills
// without a date or an amount are skipped.
func MonthlyTotals(bills []Bill) []MonthTotal {
	totals := make(map[string]decimal.Decimal)
	for _, b := range bills {
		if b.Date == nil || b.Amount == nil {
			continue
		}
		key := MonthKey(*b.Date)
		totals[key] = totals[key].Add(*b.Amount)
	}

	out := make([]MonthTotal, 0, len(totals))
	for month, total := range totals {
		out = append(out, MonthTotal{Month: month, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// CategoryTotals sums amounts per category in first-seen order. Bills
// without a category or an amount are skipped.
func CategoryTotals(bills []Bill) []CategoryTotal {
	index := make(map[string]int)
	out := make([]CategoryTotal, 0)
	for _, b := range bills {
		if b.Category == nil || b.Amount == nil {
			continue
		}
		i, ok := index[*b.Category]
		if !ok {
			i = len(out)
			index[*b.Category] = i
			out = append(out, CategoryTotal{Category: *b.Category})
		}
		out[i].Total = out[i].Total.Add(*b.Amount)
	}
	return out
}

// PartitionByStatus returns the paid bills when paid is true, otherwise
// every other bill including those with no status. Order is preserved.
func PartitionByStatus(bills []Bill, paid bool) []Bill {
	out := make([]Bill, 0, len(bills))
	for _, b := range bills {
		if b.IsPaid() == paid {
			out = append(out, b)
		}
	}
	return out
}

// Summarize computes the dashboard aggregates for bills.
func Summarize(bills []Bill) Summary {
	s := Summary{
		Monthly:    MonthlyTotals(bills),
		Categories: CategoryTotals(bills),
		Options:    Options(bills),
	}
	for _, b := range bills {
		if b.IsPaid() {
			s.PaidCount++
		} else {
			s.UnpaidCount++
		}
	}
	return s
}
