package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Role1776/gigago"
	"github.com/shopspring/decimal"

	"billscan/internal/core"
)

// ErrNoFields is returned when the model answer holds no JSON object.
var ErrNoFields = errors.New("no bill fields in model response")

// maxPromptText caps the document text sent to the model.
const maxPromptText = 12000

const systemInstruction = "You are an assistant that extracts structured invoice information. " +
	"The input invoice may be in English or Hebrew. Do not translate any text; output the data in the original language. " +
	"Extract the following fields: vendor, date, due_date, amount, currency, category, status. " +
	"Dates use the YYYY-MM-DD format. Amount is a plain number without currency symbols. " +
	"Use null for anything you cannot find. Output only a JSON object with these keys."

// Fields are the bill attributes read from a document. Absent values stay nil.
type Fields struct {
	Vendor   *string
	Date     *string
	DueDate  *string
	Amount   *decimal.Decimal
	Currency *string
	Category *string
	Status   *string
}

// Empty reports whether no field was found.
func (f Fields) Empty() bool {
	return f.Vendor == nil && f.Date == nil && f.DueDate == nil && f.Amount == nil &&
		f.Currency == nil && f.Category == nil && f.Status == nil
}

// Bill converts the fields into an unsaved bill.
func (f Fields) Bill() core.Bill {
	return core.Bill{
		Vendor:   f.Vendor,
		Date:     f.Date,
		DueDate:  f.DueDate,
		Amount:   f.Amount,
		Currency: f.Currency,
		Category: f.Category,
		Status:   f.Status,
	}
}

// FieldExtractor reads bill fields out of free text.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (Fields, error)
}

// GigaChatExtractor asks a GigaChat model for the bill fields.
type GigaChatExtractor struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
}

func NewGigaChatExtractor(ctx context.Context, apiKey, scope string, insecureSkipVerify bool) (*GigaChatExtractor, error) {
	opts := []gigago.Option{gigago.WithCustomScope(scope)}
	if insecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
	}

	client, err := gigago.NewClient(ctx, apiKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gigachat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = systemInstruction
	model.Temperature = 0

	return &GigaChatExtractor{client: client, model: model}, nil
}

func (e *GigaChatExtractor) Extract(ctx context.Context, text string) (Fields, error) {
	prompt := "Invoice Text:\n" + truncate(text, maxPromptText) + "\nExtract the data as JSON."

	resp, err := e.model.Generate(ctx, []gigago.Message{{Role: gigago.RoleUser, Content: prompt}})
	if err != nil {
		return Fields{}, fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Fields{}, ErrNoFields
	}
	return ParseFields(resp.Choices[0].Message.Content)
}

func (e *GigaChatExtractor) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ParseFields decodes the JSON object in a model answer. Markdown fences and
// surrounding prose are ignored. Values that are missing, null, empty or of
// the wrong shape become nil.
func ParseFields(content string) (Fields, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return Fields{}, ErrNoFields
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrNoFields, err)
	}

	f := Fields{
		Vendor:   rawString(raw["vendor"]),
		Date:     normalizeDate(rawString(raw["date"])),
		DueDate:  normalizeDate(rawString(raw["due_date"])),
		Amount:   rawAmount(raw["amount"]),
		Currency: upper(rawString(raw["currency"])),
		Category: rawString(raw["category"]),
		Status:   rawString(raw["status"]),
	}
	return f, nil
}

func rawString(m json.RawMessage) *string {
	if len(m) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil
		}
		return core.Str(s)
	}
	var n json.Number
	if err := json.Unmarshal(m, &n); err == nil {
		return core.Str(n.String())
	}
	return nil
}

func rawAmount(m json.RawMessage) *decimal.Decimal {
	if t := bytes.TrimSpace(m); len(t) > 0 && t[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(t, &n); err != nil {
			return nil
		}
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil
		}
		return &d
	}
	s := rawString(m)
	if s == nil {
		return nil
	}
	d, err := core.ParseAmount(*s)
	if err != nil {
		return nil
	}
	return &d
}

func upper(s *string) *string {
	if s == nil {
		return nil
	}
	u := strings.ToUpper(*s)
	return &u
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02.01.2006",
	"02-01-2006",
	"2/1/2006",
	"2006-01-02T15:04:05Z07:00",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// normalizeDate rewrites known date layouts as YYYY-MM-DD. Dates in no known
// layout are dropped so they cannot produce bogus month keys.
func normalizeDate(s *string) *string {
	if s == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	if len(*s) == 7 {
		if t, err := time.Parse("2006-01", *s); err == nil {
			out := t.Format("2006-01")
			return &out
		}
	}
	return nil
}
