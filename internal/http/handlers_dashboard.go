package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"billscan/internal/auth"
	"billscan/internal/core"
	"billscan/internal/services"
)

const missingField = "-"

type billRow struct {
	Vendor   string
	Date     string
	DueDate  string
	Amount   string
	Category string
	Status   string
	Paid     bool
}

type barRow struct {
	Label  string
	Amount string
	Width  int
}

type dashboardData struct {
	LoggedIn bool
	Email    string
	Error    string

	Vendor     string
	Category   string
	Month      string
	Vendors    []string
	Categories []string

	ShowPaid  bool
	UnpaidURL string
	PaidURL   string

	Bills       []billRow
	Monthly     []barRow
	ByCategory  []barRow
	PaidCount   int
	UnpaidCount int

	Job        *core.SyncJob
	JobPending bool
}

// handleDashboard renders the login view or, with a valid session cookie,
// the bills table and both charts for the current filter form.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	claims, err := s.jwt.Validate(auth.TokenFromRequest(r))
	if err != nil {
		s.render(w, r, dashboardData{})
		return
	}

	ctx := r.Context()
	q := r.URL.Query()
	data := dashboardData{
		LoggedIn: true,
		Email:    claims.Email,
		Vendor:   sanitizeInput(q.Get("vendor")),
		Category: sanitizeInput(q.Get("category")),
		Month:    sanitizeInput(q.Get("month")),
		ShowPaid: q.Get("tab") == "paid",
	}
	data.UnpaidURL = tabURL(q, "")
	data.PaidURL = tabURL(q, "paid")
	if q.Get("error") == "sync" {
		data.Error = "Could not start a sync. Try again in a moment."
	}

	criteria := criteriaFromForm(q)
	paid := data.ShowPaid
	bills, err := s.bills.List(ctx, claims.UserID, services.Query{Criteria: criteria, Paid: &paid})
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard bill list error", "error", err)
		data.Error = "Could not load bills."
	}
	sum, err := s.bills.Summary(ctx, claims.UserID, criteria)
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard summary error", "error", err)
		data.Error = "Could not load bills."
	}

	for _, b := range bills {
		data.Bills = append(data.Bills, newBillRow(b))
	}
	data.Vendors = nonEmpty(sum.Options.Vendors)
	data.Categories = nonEmpty(sum.Options.Categories)
	data.PaidCount = sum.PaidCount
	data.UnpaidCount = sum.UnpaidCount

	labels := make([]string, 0, len(sum.Monthly))
	totals := make([]decimal.Decimal, 0, len(sum.Monthly))
	for _, m := range sum.Monthly {
		labels = append(labels, m.Month)
		totals = append(totals, m.Total)
	}
	data.Monthly = barRows(labels, totals)

	labels, totals = labels[:0:0], totals[:0:0]
	for _, c := range sum.Categories {
		labels = append(labels, c.Category)
		totals = append(totals, c.Total)
	}
	data.ByCategory = barRows(labels, totals)

	if id := q.Get("job"); id != "" {
		job, err := s.sync.Status(ctx, claims.UserID, id)
		if err != nil {
			slog.WarnContext(ctx, "Dashboard sync status error", "job_id", id, "error", err)
		} else {
			data.Job = &job
			data.JobPending = !job.Status.Done()
		}
	}

	s.render(w, r, data)
}

// handleDashboardSync is the form variant of POST /api/sync. It redirects
// to the dashboard with the job id, which reloads itself until the job
// is finished.
func (s *Server) handleDashboardSync(w http.ResponseWriter, r *http.Request) {
	claims, err := s.jwt.Validate(auth.TokenFromRequest(r))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	job, _, err := s.sync.Request(r.Context(), claims.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Dashboard sync request failed", "error", err)
		http.Redirect(w, r, "/?error=sync", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/?job="+url.QueryEscape(job.ID), http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, data dashboardData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Dashboard template execution failed", "error", err)
		http.Error(w, "could not render dashboard", http.StatusInternalServerError)
	}
}

func newBillRow(b core.Bill) billRow {
	row := billRow{
		Vendor:   orMissing(b.Vendor),
		Date:     orMissing(b.Date),
		DueDate:  orMissing(b.DueDate),
		Amount:   missingField,
		Category: orMissing(b.Category),
		Status:   orMissing(b.Status),
		Paid:     b.IsPaid(),
	}
	if b.Amount != nil {
		currency := ""
		if b.Currency != nil {
			currency = *b.Currency
		}
		row.Amount = core.FormatAmount(*b.Amount, currency)
	}
	return row
}

func orMissing(s *string) string {
	if s == nil || *s == "" {
		return missingField
	}
	return *s
}

// nonEmpty drops the empty value, which the form cannot tell apart from "All".
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// barRows scales totals to percentages of the largest magnitude. Non-zero
// bars get at least 2% so they stay visible.
func barRows(labels []string, totals []decimal.Decimal) []barRow {
	maxTotal := decimal.Zero
	for _, t := range totals {
		if t.Abs().GreaterThan(maxTotal) {
			maxTotal = t.Abs()
		}
	}

	rows := make([]barRow, 0, len(labels))
	for i, label := range labels {
		width := 0
		if maxTotal.IsPositive() && !totals[i].IsZero() {
			width = int(totals[i].Abs().Mul(decimal.NewFromInt(100)).Div(maxTotal).Round(0).IntPart())
			if width < 2 {
				width = 2
			}
			if width > 100 {
				width = 100
			}
		}
		rows = append(rows, barRow{Label: label, Amount: totals[i].StringFixed(2), Width: width})
	}
	return rows
}

func tabURL(q url.Values, tab string) string {
	next := url.Values{}
	for _, key := range []string{"vendor", "category", "month"} {
		if v := q.Get(key); v != "" {
			next.Set(key, v)
		}
	}
	if tab != "" {
		next.Set("tab", tab)
	}
	if len(next) == 0 {
		return "/"
	}
	return "/?" + next.Encode()
}
