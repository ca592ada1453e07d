package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevin07696/mpesa-checkout/internal/domain"
	"github.com/kevin07696/mpesa-checkout/internal/poller"
)

func payCmd() *cobra.Command {
	var (
		phone    string
		noWait   bool
		interval time.Duration
		attempts int
	)

	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Send an STK push for an order and wait for the payer",
		Long: `Send an STK push for the order's full total through the public API,
then poll its payment status the way the checkout page does.

Examples:
  ordersctl pay 6f1c... --phone 0712345678
  ordersctl pay 6f1c... --no-wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPIClient(apiURL)
			p := poller.New(poller.NewHTTPStatusReader(api.baseURL, api.http))
			p.Interval = interval
			p.MaxAttempts = attempts
			return runPay(cmd, api, p, args[0], phone, !noWait)
		},
	}

	cmd.Flags().StringVar(&phone, "phone", "", "payer phone (defaults to the order's phone)")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the prompt is sent")
	cmd.Flags().DurationVar(&interval, "interval", poller.DefaultInterval, "delay between status checks")
	cmd.Flags().IntVar(&attempts, "attempts", poller.DefaultMaxAttempts, "status checks before giving up")
	return cmd
}

func runPay(cmd *cobra.Command, api *apiClient, p *poller.Poller, orderID, phone string, wait bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	order, err := api.getOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if phone == "" {
		phone = order.CustomerPhone
	}

	res, err := api.push(ctx, order.ID, phone, order.TotalAmount)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "prompt sent to %s for KES %d (checkout %s)\n", phone, order.TotalAmount, res.CheckoutRequestID)
	if !wait {
		return nil
	}

	p.OnAttempt = func(attempt int, status domain.PaymentStatus, err error) {
		if err != nil {
			fmt.Fprintf(out, "  check %d: %v\n", attempt, err)
			return
		}
		fmt.Fprintf(out, "  check %d: %s\n", attempt, status)
	}

	result, err := p.Poll(ctx, order.ID)
	if err != nil {
		return err
	}
	return reportOutcome(out, order, result)
}

func reportOutcome(out io.Writer, order *domain.Order, result poller.Result) error {
	switch result.Outcome {
	case poller.OutcomePaid:
		fmt.Fprintf(out, "%s paid after %d checks\n", order.OrderNumber, result.Attempts)
		return nil
	case poller.OutcomeFailed:
		return fmt.Errorf("%s: payment failed or was cancelled on the phone", order.OrderNumber)
	default:
		return fmt.Errorf("%s: no confirmation after %d checks; verify in the M-Pesa portal", order.OrderNumber, result.Attempts)
	}
}
