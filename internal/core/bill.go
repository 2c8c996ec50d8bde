package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Bill is a single extracted bill as served by the bills API.
// Every field except ID may be absent.
type Bill struct {
	ID       int64            `json:"id"`
	Vendor   *string          `json:"vendor"`
	Date     *string          `json:"date"`
	DueDate  *string          `json:"due_date"`
	Amount   *decimal.Decimal `json:"amount"`
	Currency *string          `json:"currency"`
	Category *string          `json:"category"`
	Status   *string          `json:"status"`
}

type billJSON struct {
	ID       int64           `json:"id"`
	Vendor   *string         `json:"vendor"`
	Date     *string         `json:"date"`
	DueDate  *string         `json:"due_date"`
	Amount   json.RawMessage `json:"amount"`
	Currency *string         `json:"currency"`
	Category *string         `json:"category"`
	Status   *string         `json:"status"`
}

// MarshalJSON writes the amount as a bare JSON number.
func (b Bill) MarshalJSON() ([]byte, error) {
	out := billJSON{
		ID:       b.ID,
		Vendor:   b.Vendor,
		Date:     b.Date,
		DueDate:  b.DueDate,
		Amount:   json.RawMessage("null"),
		Currency: b.Currency,
		Category: b.Category,
		Status:   b.Status,
	}
	if b.Amount != nil {
		out.Amount = json.RawMessage(b.Amount.String())
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the amount as a number or a strictly numeric string.
// Anything else leaves Amount nil so the bill drops out of aggregation.
func (b *Bill) UnmarshalJSON(data []byte) error {
	var in billJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*b = Bill{
		ID:       in.ID,
		Vendor:   in.Vendor,
		Date:     in.Date,
		DueDate:  in.DueDate,
		Amount:   decodeAmount(in.Amount),
		Currency: in.Currency,
		Category: in.Category,
		Status:   in.Status,
	}
	return nil
}

func decodeAmount(raw json.RawMessage) *decimal.Decimal {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil
		}
		return &d
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return nil
	}
	return &d
}

// IsPaid reports whether the status is "paid", ignoring case.
// A missing status is unpaid.
func (b Bill) IsPaid() bool {
	return b.Status != nil && strings.ToLower(*b.Status) == "paid"
}

// Str returns a pointer to s. Handy for building optional fields.
func Str(s string) *string {
	return &s
}

// Dec returns a pointer to the decimal parsed from s, or nil when s is not numeric.
func Dec(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
