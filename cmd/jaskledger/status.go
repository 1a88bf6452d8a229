package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the ledger store and the latest ingest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(false)
			if err != nil {
				return err
			}
			defer env.close()
			ctx := cmd.Context()

			stats, err := env.ledger.Overview(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Transactions: %d (transfers: %d, recurring: %d, refunds: %d)\n",
				stats.Total, stats.Transfers, stats.Recurring, stats.Refunds)
			if stats.Total > 0 {
				fmt.Printf("Date range: %s to %s\n",
					stats.FirstPostedAt.Format(time.DateOnly), stats.LastPostedAt.Format(time.DateOnly))
			}

			if run, err := env.runs.Latest(ctx); err != nil {
				return err
			} else if run != nil {
				fmt.Printf("Last run %s: files seen %d, imported %d, failed %d, rows inserted %d\n",
					run.StartedAt.Format(time.RFC3339), run.FilesSeen, run.FilesImported, run.FilesFailed, run.RowsInserted)
			}

			months, err := env.ledger.MonthlyTotals(ctx)
			if err != nil {
				return err
			}
			if len(months) > 0 {
				fmt.Println("\nMonthly totals (internal transfers excluded):")
				for _, m := range months {
					fmt.Printf("  %s  %4d txns  income %10.2f  expenses %10.2f\n",
						m.Month, m.Count, float64(m.IncomeCents)/100, float64(m.ExpenseCents)/100)
				}
			}
			return nil
		},
	}
	return cmd
}
