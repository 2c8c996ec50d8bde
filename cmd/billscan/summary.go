package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"billscan/internal/core"
)

var (
	summaryVendor   string
	summaryCategory string
	summaryMonth    string
)

const barWidth = 40

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show monthly and per-category totals",
	RunE:  runSummary,
}

func init() {
	addCriteriaFlags(summaryCmd, &summaryVendor, &summaryCategory, &summaryMonth)
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	api, err := signedInClient()
	if err != nil {
		return err
	}
	sum, err := api.Summary(cmd.Context(), criteriaFromFlags(cmd, summaryVendor, summaryCategory, summaryMonth))
	if err != nil {
		return explain(err)
	}
	printSummary(cmd.OutOrStdout(), sum)
	return nil
}

func printSummary(w io.Writer, sum core.Summary) {
	fmt.Fprintf(w, "Unpaid Bills: %d   Paid Bills: %d\n", sum.UnpaidCount, sum.PaidCount)

	fmt.Fprintln(w, "\nMonthly Expenses")
	monthly := make([]decimal.Decimal, len(sum.Monthly))
	for i, m := range sum.Monthly {
		monthly[i] = m.Total
	}
	if len(sum.Monthly) == 0 {
		fmt.Fprintln(w, "  No data")
	}
	for _, m := range sum.Monthly {
		fmt.Fprintf(w, "  %-8s %14s  %s\n", m.Month, groupedAmount(m.Total, ""), bar(m.Total, monthly))
	}

	fmt.Fprintln(w, "\nExpenses by Category")
	byCategory := make([]decimal.Decimal, len(sum.Categories))
	for i, c := range sum.Categories {
		byCategory[i] = c.Total
	}
	if len(sum.Categories) == 0 {
		fmt.Fprintln(w, "  No data")
	}
	for _, c := range sum.Categories {
		fmt.Fprintf(w, "  %-16s %14s  %s\n", clip(c.Category, 16), groupedAmount(c.Total, ""), bar(c.Total, byCategory))
	}
}

// bar scales v against the largest absolute value in all.
func bar(v decimal.Decimal, all []decimal.Decimal) string {
	peak := decimal.Zero
	for _, a := range all {
		if a.Abs().GreaterThan(peak) {
			peak = a.Abs()
		}
	}
	if peak.IsZero() {
		return ""
	}
	n := int(v.Abs().Div(peak).Mul(decimal.NewFromInt(barWidth)).Round(0).IntPart())
	if n < 1 {
		n = 1
	}
	return strings.Repeat("#", n)
}
