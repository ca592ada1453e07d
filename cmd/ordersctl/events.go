package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/events"
	"github.com/kevin07696/mpesa-checkout/internal/config"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Work with the order event stream",
	}
	cmd.AddCommand(eventsTailCmd())
	return cmd
}

func eventsTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print order events as they are published (Ctrl-C to stop)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if cfg.Events.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}

			out := cmd.OutOrStdout()
			err = events.Subscribe(cmd.Context(), cfg.Events.AMQPURL, cfg.Events.Exchange, func(ev ports.Event) {
				fmt.Fprintf(out, "%s %-24s %s ", ev.OccurredAt.Format("15:04:05"), ev.Type, ev.OrderID)
				_ = printJSON(out, ev.Data)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
