package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"billscan/internal/client"
	"billscan/internal/core"
)

var (
	billsVendor   string
	billsCategory string
	billsMonth    string
	billsPaid     bool
	billsUnpaid   bool
)

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "List your bills",
	Long: `Lists extracted bills. Filters match exactly; passing an empty value
(--vendor "") selects bills whose vendor is empty.`,
	RunE: runBills,
}

func init() {
	addCriteriaFlags(billsCmd, &billsVendor, &billsCategory, &billsMonth)
	billsCmd.Flags().BoolVar(&billsPaid, "paid", false, "only paid bills")
	billsCmd.Flags().BoolVar(&billsUnpaid, "unpaid", false, "only unpaid bills")
	billsCmd.MarkFlagsMutuallyExclusive("paid", "unpaid")
	rootCmd.AddCommand(billsCmd)
}

func addCriteriaFlags(cmd *cobra.Command, vendor, category, month *string) {
	cmd.Flags().StringVar(vendor, "vendor", "", "exact vendor")
	cmd.Flags().StringVar(category, "category", "", "exact category")
	cmd.Flags().StringVar(month, "month", "", "month as YYYY-MM")
}

// criteriaFromFlags sets only the filters given on the command line
func criteriaFromFlags(cmd *cobra.Command, vendor, category, month string) core.Criteria {
	var c core.Criteria
	if cmd.Flags().Changed("vendor") {
		c.Vendor = core.Str(vendor)
	}
	if cmd.Flags().Changed("category") {
		c.Category = core.Str(category)
	}
	if cmd.Flags().Changed("month") {
		c.Month = core.Str(month)
	}
	return c
}

func billsQuery(cmd *cobra.Command) (client.Query, error) {
	if billsPaid && billsUnpaid {
		return client.Query{}, errors.New("--paid and --unpaid cannot be combined")
	}
	q := client.Query{Criteria: criteriaFromFlags(cmd, billsVendor, billsCategory, billsMonth)}
	if billsPaid || billsUnpaid {
		paid := billsPaid
		q.Paid = &paid
	}
	return q, nil
}

func runBills(cmd *cobra.Command, args []string) error {
	q, err := billsQuery(cmd)
	if err != nil {
		return err
	}
	api, err := signedInClient()
	if err != nil {
		return err
	}
	bills, err := api.Bills(cmd.Context(), q)
	if err != nil {
		return explain(err)
	}
	printBills(cmd.OutOrStdout(), bills)
	return nil
}

func printBills(w io.Writer, bills []core.Bill) {
	if len(bills) == 0 {
		fmt.Fprintln(w, "No bills found.")
		return
	}

	rule := strings.Repeat("-", 96)
	fmt.Fprintf(w, "%-24s  %-10s  %-10s  %14s  %-16s  %-10s\n", "Vendor", "Date", "Due Date", "Amount", "Category", "Status")
	fmt.Fprintln(w, rule)

	totals := make(map[string]decimal.Decimal)
	var currencies []string
	for _, b := range bills {
		amount := "-"
		if b.Amount != nil {
			currency := orEmpty(b.Currency)
			amount = core.FormatAmount(*b.Amount, currency)
			if _, seen := totals[currency]; !seen {
				currencies = append(currencies, currency)
			}
			totals[currency] = totals[currency].Add(*b.Amount)
		}
		fmt.Fprintf(w, "%-24s  %-10s  %-10s  %14s  %-16s  %-10s\n",
			clip(display(b.Vendor), 24), display(b.Date), display(b.DueDate), amount,
			clip(display(b.Category), 16), display(b.Status))
	}

	fmt.Fprintln(w, rule)
	parts := make([]string, 0, len(currencies))
	for _, c := range currencies {
		parts = append(parts, groupedAmount(totals[c], c))
	}
	fmt.Fprintf(w, "Bills: %s", humanize.Comma(int64(len(bills))))
	if len(parts) > 0 {
		fmt.Fprintf(w, ", total %s", strings.Join(parts, " + "))
	}
	fmt.Fprintln(w)
}

// groupedAmount renders d with thousands separators and two decimals.
func groupedAmount(d decimal.Decimal, currency string) string {
	s := humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
	if currency != "" {
		s += " " + strings.ToUpper(currency)
	}
	return s
}

func display(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
