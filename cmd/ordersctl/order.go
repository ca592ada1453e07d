package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevin07696/mpesa-checkout/internal/adapters/postgres"
	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/domain/ports"
	ordersvc "github.com/kevin07696/mpesa-checkout/internal/services/order"
	"github.com/kevin07696/mpesa-checkout/pkg/resilience"
)

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and manage orders directly in the database",
	}
	cmd.AddCommand(orderShowCmd(), orderListCmd(), orderRefundCmd(), orderSeedCmd())
	return cmd
}

func withOrders(cmd *cobra.Command, fn func(svc *ordersvc.Service) error) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	svc := ordersvc.NewService(postgres.NewOrderRepository(e.db), nil, resilience.DefaultTimeoutConfig(), e.logger)
	return fn(svc)
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Print one order with its lines as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrders(cmd, func(svc *ordersvc.Service) error {
				o, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
}

func orderListCmd() *cobra.Command {
	var (
		paymentStatus string
		orderStatus   string
		limit         int32
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := ports.OrderFilter{Limit: limit}
			if paymentStatus != "" {
				ps := domain.PaymentStatus(paymentStatus)
				filter.PaymentStatus = &ps
			}
			if orderStatus != "" {
				st := domain.OrderStatus(orderStatus)
				filter.OrderStatus = &st
			}

			return withOrders(cmd, func(svc *ordersvc.Service) error {
				orders, err := svc.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				printOrders(cmd.OutOrStdout(), orders)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&paymentStatus, "payment-status", "", "pending, paid, failed or refunded")
	cmd.Flags().StringVar(&orderStatus, "order-status", "", "new, preparing, ready, completed or cancelled")
	cmd.Flags().Int32VarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}

func orderRefundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund <order-id>",
		Short: "Record that a paid order was refunded outside the system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrders(cmd, func(svc *ordersvc.Service) error {
				o, err := svc.MarkRefunded(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s marked refunded (receipt %s)\n", o.OrderNumber, o.GetReceipt())
				return nil
			})
		},
	}
}

func orderSeedCmd() *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a small demo order for sandbox testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOrders(cmd, func(svc *ordersvc.Service) error {
				o, err := svc.Create(cmd.Context(), ordersvc.CreateOrderRequest{
					CustomerName:  "Sandbox Tester",
					CustomerPhone: phone,
					Notes:         "created by ordersctl seed",
					Items: []ordersvc.LineRequest{
						{MenuItemID: "demo-chai", MenuItemName: "Chai", Quantity: 1, UnitPrice: 1},
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) for KES %d\n", o.OrderNumber, o.ID, o.TotalAmount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "254708374149", "payer phone; defaults to the Daraja sandbox test number")
	return cmd
}

func printOrders(w io.Writer, orders []*domain.Order) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tID\tTOTAL\tPAYMENT\tKITCHEN\tRECEIPT\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			o.OrderNumber, o.ID, o.TotalAmount, o.PaymentStatus, o.OrderStatus,
			o.GetReceipt(), o.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
