package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/taplinks-cli/internal/api"
	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/output"
)

// expiryPresets are the link lifetimes offered when creating a payment request.
var expiryPresets = map[string]time.Duration{
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
}

// validate checks user input before it is sent.
var validate = validator.New(validator.WithRequiredStructEnabled())

// now is replaced in tests.
var now = time.Now

func paymentsCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:    "payments",
		Aliases: []string{"p"},
		Usage:   "Manage payment requests",
		Before:  e.signedIn,
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List payment requests, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "offset", Value: api.DefaultOffset, Usage: "number of requests to skip"},
					&cli.IntFlag{Name: "limit", Value: api.DefaultLimit, Usage: "maximum number of requests"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					payments, err := e.app.Services().PaymentRequests.List(ctx, cmd.Int("offset"), cmd.Int("limit"))
					if err != nil {
						return err
					}
					if len(payments) == 0 {
						e.printer.Info("No payment requests yet")
						return nil
					}
					return renderPayments(e.printer, payments)
				},
			},
			{
				Name:  "create",
				Usage: "Create a payment link",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Usage: "offered service the request is for", Required: true},
					&cli.FloatFlag{Name: "amount", Usage: "amount to charge", Required: true},
					&cli.BoolFlag{Name: "tax-included", Usage: "amount already includes tax"},
					&cli.StringFlag{Name: "expires-in", Value: "24h", Usage: "link lifetime (1h|3h|12h|24h)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					input, err := createInput(cmd.String("service"), cmd.Float("amount"), cmd.Bool("tax-included"), cmd.String("expires-in"))
					if err != nil {
						return err
					}

					payment, err := e.app.Services().PaymentRequests.Create(ctx, input)
					if err != nil {
						return err
					}
					e.printer.Success("Created payment request #%d", payment.ID)
					renderPayment(e.printer, payment)
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "Show a payment request",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := paymentID(cmd)
					if err != nil {
						return err
					}
					payment, err := e.app.Services().PaymentRequests.Get(ctx, id)
					if err != nil {
						return err
					}
					renderPayment(e.printer, payment)
					return nil
				},
			},
			{
				Name:      "update",
				Usage:     "Change status or customer details of a payment request",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "PENDING, PAID, EXPIRED or CANCELLED"},
					&cli.StringFlag{Name: "customer-name", Usage: "customer name"},
					&cli.StringFlag{Name: "customer-phone", Usage: "customer phone number"},
					&cli.StringFlag{Name: "invoice-id", Usage: "payment invoice id"},
					&cli.StringFlag{Name: "paid-at", Usage: "payment time (RFC 3339)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := paymentID(cmd)
					if err != nil {
						return err
					}
					input, err := updateInput(cmd)
					if err != nil {
						return err
					}

					payment, err := e.app.Services().PaymentRequests.Update(ctx, id, input)
					if err != nil {
						return err
					}
					e.printer.Success("Updated payment request #%d", payment.ID)
					renderPayment(e.printer, payment)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a payment request",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := paymentID(cmd)
					if err != nil {
						return err
					}
					if err := e.app.Services().PaymentRequests.Delete(ctx, id); err != nil {
						return err
					}
					e.printer.Success("Deleted payment request #%d", id)
					return nil
				},
			},
		},
	}
}

// signedIn stops commands that need a session before any request is sent.
func (e *env) signedIn(ctx context.Context, _ *cli.Command) (context.Context, error) {
	return ctx, e.app.RequireSession(ctx)
}

func createInput(service string, amount float64, taxIncluded bool, expiresIn string) (model.CreatePaymentRequestInput, error) {
	lifetime, ok := expiryPresets[expiresIn]
	if !ok {
		return model.CreatePaymentRequestInput{}, usageError(
			fmt.Sprintf("invalid --expires-in %q", expiresIn),
			"Use one of 1h, 3h, 12h or 24h",
		)
	}

	input := model.CreatePaymentRequestInput{
		Service:     strings.TrimSpace(service),
		Amount:      amount,
		TaxIncluded: taxIncluded,
		Expiry:      now().Add(lifetime).UTC().Format(time.RFC3339),
	}
	if err := validate.Struct(input); err != nil {
		return model.CreatePaymentRequestInput{}, err
	}
	return input, nil
}

func updateInput(cmd *cli.Command) (model.UpdatePaymentRequestInput, error) {
	var input model.UpdatePaymentRequestInput
	set := func(flag string) *string {
		if !cmd.IsSet(flag) {
			return nil
		}
		v := cmd.String(flag)
		return &v
	}

	input.Status = set("status")
	if input.Status != nil {
		upper := strings.ToUpper(*input.Status)
		input.Status = &upper
	}
	input.CustomerName = set("customer-name")
	input.CustomerPhone = set("customer-phone")
	input.PaymentInvoiceID = set("invoice-id")
	input.PaidAt = set("paid-at")

	if input == (model.UpdatePaymentRequestInput{}) {
		return input, usageError("nothing to update", "Pass at least one of --status, --customer-name, --customer-phone, --invoice-id or --paid-at")
	}
	if input.PaidAt != nil {
		if _, err := time.Parse(time.RFC3339, *input.PaidAt); err != nil {
			return input, usageError(fmt.Sprintf("invalid --paid-at %q", *input.PaidAt), "Use RFC 3339, e.g. 2024-05-01T10:00:00Z")
		}
	}
	if err := validate.Struct(input); err != nil {
		return input, err
	}
	return input, nil
}

func paymentID(cmd *cli.Command) (int, error) {
	arg := cmd.Args().First()
	if arg == "" {
		return 0, usageError("payment request ID required", "Run 'taplinks payments list' to find it")
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, usageError(fmt.Sprintf("invalid payment request ID %q", arg), "")
	}
	return id, nil
}

func renderPayments(p *output.Printer, payments []model.PaymentRequest) error {
	table := output.NewTable(p.Out(), []string{"ID", "SERVICE", "AMOUNT", "STATUS", "CUSTOMER", "EXPIRES", "CREATED"})
	for _, pr := range payments {
		table.AddRow(
			strconv.Itoa(pr.ID),
			pr.Service,
			formatAmount(pr.Amount),
			p.StatusBadge(pr.Status),
			deref(pr.CustomerName),
			formatTime(pr.Expiry),
			formatTime(pr.CreatedAt),
		)
	}
	return table.Render()
}

func renderPayment(p *output.Printer, pr model.PaymentRequest) {
	p.Header(fmt.Sprintf("Payment request #%d", pr.ID))
	p.Field("Service", pr.Service)
	p.Field("Status", p.StatusBadge(pr.Status))
	p.Field("Amount", formatAmount(pr.Amount))
	if pr.Tax != nil {
		p.Field("Tax", formatAmount(*pr.Tax))
	}
	p.Field("Tax included", pr.TaxIncluded)
	p.Field("Platform fee", formatAmount(pr.User.PlatformCharge))
	if pr.BookingNumber != nil {
		p.Field("Booking", *pr.BookingNumber)
	}
	if pr.CustomerName != nil || pr.CustomerPhone != nil {
		p.Field("Customer", strings.TrimSpace(deref(pr.CustomerName)+" "+deref(pr.CustomerPhone)))
	}
	p.Field("Expires", formatTime(pr.Expiry))
	if pr.PaidAt != nil {
		p.Field("Paid", formatTime(*pr.PaidAt))
	}
	p.Field("Created", formatTime(pr.CreatedAt))
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// formatTime shortens RFC 3339 timestamps and passes anything else through.
func formatTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
