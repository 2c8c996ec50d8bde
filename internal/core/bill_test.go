package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBillUnmarshalAmount(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string // empty means nil amount
	}{
		{"number", `{"id":1,"amount":12.5}`, "12.5"},
		{"numeric string", `{"id":1,"amount":"12.50"}`, "12.5"},
		{"null", `{"id":1,"amount":null}`, ""},
		{"missing", `{"id":1}`, ""},
		{"padded numeric string", `{"id":1,"amount":" 7.25 "}`, "7.25"},
		{"exponent string", `{"id":1,"amount":"1e5"}`, "100000"},
		{"garbage string", `{"id":1,"amount":"n/a"}`, ""},
		{"letters before digit", `{"id":1,"amount":"abc1"}`, ""},
		{"date-like string", `{"id":1,"amount":"12-03"}`, ""},
		{"words and digits", `{"id":1,"amount":"Invoice 2024"}`, ""},
		{"currency symbol", `{"id":1,"amount":"₪12"}`, ""},
		{"bool", `{"id":1,"amount":true}`, ""},
		{"object", `{"id":1,"amount":{"v":1}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bill
			if err := json.Unmarshal([]byte(tt.json), &b); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tt.want == "" {
				if b.Amount != nil {
					t.Fatalf("amount = %s, want nil", b.Amount)
				}
				return
			}
			if b.Amount == nil || b.Amount.String() != tt.want {
				t.Fatalf("amount = %v, want %s", b.Amount, tt.want)
			}
		})
	}
}

func TestNonNumericAmountIsExcludedFromTotals(t *testing.T) {
	var bills []Bill
	data := `[{"id":1,"date":"2025-03-01","amount":"abc1"},{"id":2,"date":"2025-03-09","amount":"4"}]`
	if err := json.Unmarshal([]byte(data), &bills); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := MonthlyTotals(bills)
	if len(got) != 1 || got[0].Month != "2025-03" || got[0].Total.String() != "4" {
		t.Errorf("MonthlyTotals = %+v, want only the numeric bill", got)
	}
}

func TestBillMarshalRoundTrip(t *testing.T) {
	in := Bill{ID: 7, Vendor: Str("Acme"), Date: Str("2025-03-02"), Amount: Dec("10.25"), Status: Str("paid")}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"amount":10.25`) {
		t.Errorf("amount should be a bare number: %s", data)
	}
	if !strings.Contains(string(data), `"category":null`) {
		t.Errorf("missing category should be null: %s", data)
	}

	var out Bill
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != 7 || *out.Vendor != "Acme" || !out.Amount.Equal(*in.Amount) || !out.IsPaid() {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestIsPaid(t *testing.T) {
	cases := map[string]bool{"paid": true, "PAID": true, "Paid": true, "unpaid": false, "": false, "paid.": false}
	for status, want := range cases {
		if got := (Bill{Status: Str(status)}).IsPaid(); got != want {
			t.Errorf("IsPaid(%q) = %v, want %v", status, got, want)
		}
	}
	if (Bill{}).IsPaid() {
		t.Error("nil status should be unpaid")
	}
}
