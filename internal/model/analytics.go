package model

// Analytics periods accepted by GET analytics/dashboard.
const (
	PeriodLast7Days  = "LAST_7_DAYS"
	PeriodLast30Days = "LAST_30_DAYS"
	PeriodLast90Days = "LAST_90_DAYS"
)

type ChartDataPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type Activity struct {
	Description string   `json:"description"`
	TimeAgo     string   `json:"timeAgo"`
	Amount      *float64 `json:"amount,omitempty"`
}

type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DashboardAnalytics is the payload of GET analytics/dashboard.
type DashboardAnalytics struct {
	TotalRevenue       float64          `json:"totalRevenue"`
	RevenueChange      float64          `json:"revenueChange"`
	TotalPaymentLinks  int              `json:"totalPaymentLinks"`
	PaymentLinksChange int              `json:"paymentLinksChange"`
	SuccessRate        float64          `json:"successRate"`
	SuccessRateChange  float64          `json:"successRateChange"`
	AverageAmount      float64          `json:"averageAmount"`
	AvgAmountChange    float64          `json:"avgAmountChange"`
	RevenueData        []ChartDataPoint `json:"revenueData"`
	StatusDistribution []StatusCount    `json:"statusDistribution"`
	RecentActivity     []Activity       `json:"recentActivity"`
	Insights           []Insight        `json:"insights"`
}
