package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/jaskledger/internal/classify"
	"github.com/jask/jaskledger/internal/service"
)

func newClassifyCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Re-run the global transfer and recurring passes over the whole store",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(verbose)
			if err != nil {
				return err
			}
			defer env.close()

			pipe := &service.Pipeline{
				Ledger:    env.ledger,
				Runs:      env.runs,
				Transfers: classify.NewTransferDetector(env.cfg.Classify),
				Recurring: env.recurringDetector(),
				Log:       env.log,
			}
			transfers, recurring, err := pipe.Classify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Classification complete. Transfers flagged: %d, recurring flagged: %d\n", transfers, recurring)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log qualifying transfer pairs")
	return cmd
}
