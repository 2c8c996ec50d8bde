package http

import (
	"errors"
	"net/url"
	"strings"

	"billscan/internal/core"
)

var errInvalidPaid = errors.New("paid must be true or false")

// criteriaFromQuery reads the API filter parameters. An absent key leaves
// its criterion unset; a key present with an empty value selects bills
// whose field is the empty string.
func criteriaFromQuery(q url.Values) core.Criteria {
	return core.Criteria{
		Vendor:   optionalParam(q, "vendor"),
		Category: optionalParam(q, "category"),
		Month:    optionalParam(q, "month"),
	}
}

// criteriaFromForm reads the dashboard filter form, where an empty value
// is the "All" choice.
func criteriaFromForm(q url.Values) core.Criteria {
	return core.CriteriaFromStrings(
		sanitizeInput(q.Get("vendor")),
		sanitizeInput(q.Get("category")),
		sanitizeInput(q.Get("month")),
	)
}

func optionalParam(q url.Values, key string) *string {
	vs, ok := q[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := sanitizeInput(vs[0])
	return &v
}

// parsePaid reads the paid partition. Absent or empty means both.
func parsePaid(q url.Values) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(q.Get("paid"))) {
	case "":
		return nil, nil
	case "true", "1", "yes":
		paid := true
		return &paid, nil
	case "false", "0", "no":
		paid := false
		return &paid, nil
	default:
		return nil, errInvalidPaid
	}
}

// sanitizeInput removes control characters. Surrounding spaces are kept
// since filters match exactly.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
