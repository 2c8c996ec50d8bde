package core

import "strings"

// Criteria narrows a bill list. A nil field means "no filter" on that
// dimension; a non-nil empty string is a real selection.
type Criteria struct {
	Vendor   *string
	Category *string
	Month    *string // YYYY-MM, matched as a substring of the bill date
}

// CriteriaFromStrings builds Criteria from plain form values where the
// empty string stands for "no filter".
func CriteriaFromStrings(vendor, category, month string) Criteria {
	var c Criteria
	if vendor != "" {
		c.Vendor = Str(vendor)
	}
	if category != "" {
		c.Category = Str(category)
	}
	if month != "" {
		c.Month = Str(month)
	}
	return c
}

// IsZero reports whether no criterion is set.
func (c Criteria) IsZero() bool {
	return c.Vendor == nil && c.Category == nil && c.Month == nil
}

// Match reports whether b satisfies every set criterion.
func (c Criteria) Match(b Bill) bool {
	if c.Vendor != nil && (b.Vendor == nil || *b.Vendor != *c.Vendor) {
		return false
	}
	if c.Category != nil && (b.Category == nil || *b.Category != *c.Category) {
		return false
	}
	if c.Month != nil && (b.Date == nil || !strings.Contains(*b.Date, *c.Month)) {
		return false
	}
	return true
}

// Filter returns the bills matching c in their original order.
// The input slice is never modified.
func Filter(bills []Bill, c Criteria) []Bill {
	out := make([]Bill, 0, len(bills))
	for _, b := range bills {
		if c.Match(b) {
			out = append(out, b)
		}
	}
	return out
}

// FilterOptions lists the values offered in the vendor and category pickers.
type FilterOptions struct {
	Vendors    []string `json:"vendors"`
	Categories []string `json:"categories"`
}

// Options collects the distinct non-nil vendors and categories in
// first-occurrence order.
func Options(bills []Bill) FilterOptions {
	opts := FilterOptions{
		Vendors:    []string{},
		Categories: []string{},
	}
	seenVendor := make(map[string]struct{})
	seenCategory := make(map[string]struct{})
	for _, b := range bills {
		if b.Vendor != nil {
			if _, ok := seenVendor[*b.Vendor]; !ok {
				seenVendor[*b.Vendor] = struct{}{}
				opts.Vendors = append(opts.Vendors, *b.Vendor)
			}
		}
		if b.Category != nil {
			if _, ok := seenCategory[*b.Category]; !ok {
				seenCategory[*b.Category] = struct{}{}
				opts.Categories = append(opts.Categories, *b.Category)
			}
		}
	}
	return opts
}
