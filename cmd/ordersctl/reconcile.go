package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/postgres"
	"github.com/kevin07696/mpesa-checkout/internal/services/reconcile"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func reconcileCmd() *cobra.Command {
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List pending orders that never got a gateway outcome",
		Long: `Run the reconciliation sweep once and print orders still pending after
--threshold. These need checking against the M-Pesa portal by hand.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if !cmd.Flags().Changed("threshold") {
				threshold = e.cfg.Reconcile.Threshold
			}
			sweeper := reconcile.NewSweeper(postgres.NewOrderRepository(e.db), threshold, resilience.DefaultTimeoutConfig(), e.logger)

			orders, err := sweeper.Run(cmd.Context())
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing awaiting reconciliation")
				return nil
			}
			printOrders(cmd.OutOrStdout(), orders)
			return nil
		},
	}

	cmd.Flags().DurationVar(&threshold, "threshold", 2*time.Minute, "minimum age of a pending order")
	return cmd
}
