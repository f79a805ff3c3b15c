package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/payapp/internal/paylink"
	"github.com/sakif/payapp/internal/service"
	"github.com/sakif/payapp/internal/validation"
)

type generateOptions struct {
	paymentID string
	name      string
	amount    string
	currency  string
	scheme    string
	size      int
	output    string
	terminal  bool
	printLink bool
}

func newRootCmd() *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "qrgen",
		Short: "Render a payment deep link as a QR code",
		Long: `Render a payment deep link as a QR code.

Examples:
  qrgen --pa alice@okbank --name alice --amount 100
  qrgen --pa alice@okbank --name alice --amount 100 --currency INR -o tip.png
  qrgen --pa alice@okbank --name alice --amount 100 --terminal`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.paymentID, "pa", "", "payee payment id, e.g. alice@okbank (required)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "payee name shown by the paying app (required)")
	cmd.Flags().StringVarP(&opts.amount, "amount", "a", "", "whole-unit amount, e.g. 100 (required)")
	cmd.Flags().StringVarP(&opts.currency, "currency", "c", "", "optional currency code appended as cu=")
	cmd.Flags().StringVar(&opts.scheme, "scheme", paylink.DefaultScheme, "deep link scheme")
	cmd.Flags().IntVarP(&opts.size, "size", "s", paylink.DefaultQRSize, "PNG edge length in pixels")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "qr.png", "PNG output path")
	cmd.Flags().BoolVarP(&opts.terminal, "terminal", "t", false, "draw the QR code in the terminal instead of writing a PNG")
	cmd.Flags().BoolVar(&opts.printLink, "link", false, "only print the deep link")

	for _, name := range []string{"pa", "name", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	if !validation.ValidPaymentID(opts.paymentID) {
		return fmt.Errorf("invalid payment id %q: expected name@bank", opts.paymentID)
	}
	if opts.name == "" {
		return errors.New("--name must not be empty")
	}
	amount, err := service.ParseAmount(opts.amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: must be a positive whole number", opts.amount)
	}
	if opts.size < 21 {
		return fmt.Errorf("--size %d is too small for a readable QR code", opts.size)
	}

	link := paylink.Link{
		Scheme:    opts.scheme,
		PaymentID: opts.paymentID,
		Amount:    amount,
		Name:      opts.name,
		Currency:  opts.currency,
	}.String()

	out := cmd.OutOrStdout()

	switch {
	case opts.printLink:
		fmt.Fprintln(out, link)

	case opts.terminal:
		art, err := paylink.Terminal(link)
		if err != nil {
			return err
		}
		fmt.Fprint(out, art)
		fmt.Fprintln(out, link)

	default:
		png, err := paylink.EncodePNG(link, opts.size)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.output, png, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", opts.output, err)
		}
		fmt.Fprintf(out, "QR code saved to %s\n%s\n", opts.output, link)
	}

	return nil
}
