package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/taplinks-cli/internal/model"
	"github.com/florianilch/taplinks-cli/internal/output"
)

// periods maps the accepted --period values to API periods.
var periods = map[string]string{
	"7d":                   model.PeriodLast7Days,
	"30d":                  model.PeriodLast30Days,
	"90d":                  model.PeriodLast90Days,
	model.PeriodLast7Days:  model.PeriodLast7Days,
	model.PeriodLast30Days: model.PeriodLast30Days,
	model.PeriodLast90Days: model.PeriodLast90Days,
}

// recentPayments is how many of the latest requests the dashboard lists.
const recentPayments = 5

func analyticsCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:   "analytics",
		Usage:  "Show the dashboard",
		Before: e.signedIn,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "period",
				Value: "30d",
				Usage: "reporting period (7d|30d|90d)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			period, ok := periods[strings.ToUpper(cmd.String("period"))]
			if !ok {
				period, ok = periods[strings.ToLower(cmd.String("period"))]
			}
			if !ok {
				return usageError(fmt.Sprintf("invalid --period %q", cmd.String("period")), "Use one of 7d, 30d or 90d")
			}

			var (
				dashboard model.DashboardAnalytics
				latest    []model.PaymentRequest
			)
			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				dashboard, err = e.app.Services().Analytics.Dashboard(gCtx, period)
				return err
			})
			g.Go(func() error {
				var err error
				latest, err = e.app.Services().PaymentRequests.List(gCtx, 0, recentPayments)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			return renderDashboard(e.printer, period, dashboard, latest)
		},
	}
}

func renderDashboard(p *output.Printer, period string, d model.DashboardAnalytics, latest []model.PaymentRequest) error {
	p.Header("Dashboard " + periodLabel(period))
	p.Field("Revenue", formatAmount(d.TotalRevenue)+"  "+p.Change(d.RevenueChange, "%"))
	p.Field("Payment links", strconv.Itoa(d.TotalPaymentLinks)+"  "+p.Change(float64(d.PaymentLinksChange), ""))
	p.Field("Success rate", strconv.FormatFloat(d.SuccessRate, 'f', 1, 64)+"%  "+p.Change(d.SuccessRateChange, "%"))
	p.Field("Average", formatAmount(d.AverageAmount)+"  "+p.Change(d.AvgAmountChange, "%"))

	if len(d.StatusDistribution) > 0 {
		p.Header("Status")
		table := output.NewTable(p.Out(), []string{"STATUS", "COUNT"})
		for _, s := range d.StatusDistribution {
			table.AddRow(p.StatusBadge(s.Status), strconv.Itoa(s.Count))
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if len(d.RecentActivity) > 0 {
		p.Header("Recent activity")
		for _, a := range d.RecentActivity {
			line := a.Description
			if a.Amount != nil {
				line += "  " + formatAmount(*a.Amount)
			}
			p.Print("  %s %s", line, p.Dim("("+a.TimeAgo+")"))
		}
	}

	if len(latest) > 0 {
		p.Header("Latest payment requests")
		if err := renderPayments(p, latest); err != nil {
			return err
		}
	}

	if len(d.Insights) > 0 {
		p.Header("Insights")
		for _, in := range d.Insights {
			p.Print("  %s  %s", p.Bold(in.Title), in.Description)
		}
	}
	return nil
}

func periodLabel(period string) string {
	switch period {
	case model.PeriodLast7Days:
		return "(last 7 days)"
	case model.PeriodLast90Days:
		return "(last 90 days)"
	default:
		return "(last 30 days)"
	}
}
