package sandbox

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/florianilch/taplinks-cli/internal/model"
)

var periodDays = map[string]int{
	model.PeriodLast7Days:  7,
	model.PeriodLast30Days: 30,
	model.PeriodLast90Days: 90,
}

const recentActivityLimit = 5

// window aggregates the payment requests created within one period.
type window struct {
	total   int
	paid    int
	revenue float64
	amount  float64
}

func (w window) successRate() float64 {
	if w.total == 0 {
		return 0
	}
	return round2(float64(w.paid) / float64(w.total) * 100)
}

func (w window) averageAmount() float64 {
	if w.total == 0 {
		return 0
	}
	return round2(w.amount / float64(w.total))
}

// dashboard computes the figures for the last days days, comparing them
// with the preceding period of the same length.
func dashboard(payments []model.PaymentRequest, now time.Time, days int) model.DashboardAnalytics {
	span := time.Duration(days) * 24 * time.Hour
	start := now.Add(-span)
	prevStart := start.Add(-span)

	var cur, prev window
	statusCounts := map[string]int{}
	daily := map[string]float64{}
	var inPeriod []model.PaymentRequest

	for _, p := range payments {
		created, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			continue
		}

		switch {
		case !created.Before(start) && !created.After(now):
			cur.add(p)
			statusCounts[p.Status]++
			inPeriod = append(inPeriod, p)
			if p.Status == model.PaymentStatusPaid {
				daily[created.UTC().Format(time.DateOnly)] += p.Amount
			}
		case !created.Before(prevStart) && created.Before(start):
			prev.add(p)
		}
	}

	out := model.DashboardAnalytics{
		TotalRevenue:       round2(cur.revenue),
		RevenueChange:      percentChange(prev.revenue, cur.revenue),
		TotalPaymentLinks:  cur.total,
		PaymentLinksChange: cur.total - prev.total,
		SuccessRate:        cur.successRate(),
		SuccessRateChange:  round2(cur.successRate() - prev.successRate()),
		AverageAmount:      cur.averageAmount(),
		AvgAmountChange:    percentChange(prev.averageAmount(), cur.averageAmount()),
		RevenueData:        make([]model.ChartDataPoint, 0, days),
		StatusDistribution: make([]model.StatusCount, 0, 4),
		RecentActivity:     recentActivity(inPeriod, now),
		Insights:           insights(cur, prev),
	}

	for d := days - 1; d >= 0; d-- {
		day := now.Add(-time.Duration(d) * 24 * time.Hour).UTC().Format(time.DateOnly)
		out.RevenueData = append(out.RevenueData, model.ChartDataPoint{Timestamp: day, Value: round2(daily[day])})
	}

	for _, status := range []string{
		model.PaymentStatusPending,
		model.PaymentStatusPaid,
		model.PaymentStatusExpired,
		model.PaymentStatusCancelled,
	} {
		out.StatusDistribution = append(out.StatusDistribution, model.StatusCount{Status: status, Count: statusCounts[status]})
	}

	return out
}

func (w *window) add(p model.PaymentRequest) {
	w.total++
	w.amount += p.Amount
	if p.Status == model.PaymentStatusPaid {
		w.paid++
		w.revenue += p.Amount
	}
}

func percentChange(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return round2((after - before) / before * 100)
}

func recentActivity(payments []model.PaymentRequest, now time.Time) []model.Activity {
	sort.Slice(payments, func(i, j int) bool {
		if payments[i].UpdatedAt == payments[j].UpdatedAt {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].UpdatedAt > payments[j].UpdatedAt
	})

	out := make([]model.Activity, 0, recentActivityLimit)
	for _, p := range payments[:min(len(payments), recentActivityLimit)] {
		updated, _ := time.Parse(time.RFC3339, p.UpdatedAt)
		amount := p.Amount
		out = append(out, model.Activity{
			Description: fmt.Sprintf("%s payment request #%d", strings.ToLower(p.Status), p.ID),
			TimeAgo:     timeAgo(now.Sub(updated)),
			Amount:      &amount,
		})
	}
	return out
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func insights(cur, prev window) []model.Insight {
	out := []model.Insight{}
	switch {
	case cur.total == 0:
		out = append(out, model.Insight{
			Type:        "info",
			Title:       "No payment links yet",
			Description: "Create a payment request to start collecting payments.",
		})
	case cur.revenue > 0 && prev.revenue == 0:
		out = append(out, model.Insight{
			Type:        "positive",
			Title:       "First revenue",
			Description: "You collected your first payments in this period.",
		})
	case cur.revenue > prev.revenue:
		out = append(out, model.Insight{
			Type:        "positive",
			Title:       "Revenue is growing",
			Description: fmt.Sprintf("Revenue is up %.2f%% on the previous period.", percentChange(prev.revenue, cur.revenue)),
		})
	case cur.revenue < prev.revenue:
		out = append(out, model.Insight{
			Type:        "warning",
			Title:       "Revenue is down",
			Description: "Fewer payments were collected than in the previous period.",
		})
	}
	if cur.total > 0 && cur.successRate() < 50 {
		out = append(out, model.Insight{
			Type:        "warning",
			Title:       "Low success rate",
			Description: "Less than half of your payment links were paid. Consider shorter expiry times.",
		})
	}
	return out
}
