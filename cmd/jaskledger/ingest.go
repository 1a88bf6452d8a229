package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest all unprocessed CSV files and run the global classification passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(verbose)
			if err != nil {
				return err
			}
			defer env.close()

			pipe, err := env.pipeline()
			if err != nil {
				return err
			}
			summary, err := pipe.Run(cmd.Context())
			if err != nil {
				// ingestion is already committed; report what landed
				fmt.Printf("Ingest partially complete. New records: %d\n", summary.RowsInserted)
				return err
			}
			fmt.Printf("Ingest complete. New records: %d (files: %d imported, %d empty, %d failed; rows: %d duplicate, %d dropped)\n",
				summary.RowsInserted, summary.FilesImported, summary.FilesEmpty, summary.FilesFailed,
				summary.RowsDuplicate, summary.RowsDropped)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}
