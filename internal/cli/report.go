package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show unbilled time, outstanding invoices, and revenue",
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := appInstance.Reports.Summary(context.Background(), appInstance.Owner())
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}

		fmt.Println("Unbilled")
		fmt.Printf("  Entries: %d\n", summary.UnbilledEntries)
		fmt.Printf("  Time:    %s (%s h)\n", formatDuration(summary.UnbilledSeconds), formatHours(summary.UnbilledSeconds))
		fmt.Printf("  Value:   %s\n", formatMoney(summary.UnbilledValue))
		fmt.Println()

		fmt.Println("Outstanding")
		fmt.Printf("  Invoices: %d\n", summary.OutstandingCount)
		fmt.Printf("  Total:    %s\n", formatMoney(summary.OutstandingTotal))
		fmt.Println()

		fmt.Println("Revenue (paid, last 12 months)")
		for _, month := range summary.RevenueByMonth {
			fmt.Printf("  %-8s %14s\n", month.Month, formatMoney(month.Total))
		}

		return nil
	},
}
