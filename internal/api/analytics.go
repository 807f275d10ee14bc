package api

import (
	"context"
	"net/http"

	"github.com/florianilch/taplinks-cli/internal/model"
)

// AnalyticsService reads dashboard figures.
type AnalyticsService struct {
	client Doer
}

// Dashboard returns the analytics for period, LAST_30_DAYS when empty.
func (s *AnalyticsService) Dashboard(ctx context.Context, period string) (model.DashboardAnalytics, error) {
	if period == "" {
		period = model.PeriodLast30Days
	}

	return call[model.DashboardAnalytics](ctx, func(ctx context.Context) (*http.Response, error) {
		query, err := queryParams("period", period)
		if err != nil {
			return nil, err
		}
		return s.client.Do(ctx, http.MethodGet, "analytics/dashboard", query, nil)
	})
}
