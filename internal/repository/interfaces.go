package repository

import (
	"context"
	"time"
)

// UsageRecord is one network path attempt as written to the usage log.
type UsageRecord struct {
	Timestamp  time.Time
	EndpointID string
	Kind       string
	Provider   string
	Operation  string
	URL        string
	Success    bool
	Bytes      int64
	DurationMS int64
	Error      string
}

// UsageRepository persists path attempts for cost reporting.
// It is append-only and never consulted by path selection.
type UsageRepository interface {
	// Append stores a record.
	Append(ctx context.Context, rec UsageRecord) error

	// DailyStats aggregates records for the UTC day containing day.
	DailyStats(ctx context.Context, day time.Time) (*DailyStats, error)

	// MonthlyStats aggregates records for the UTC month containing month.
	MonthlyStats(ctx context.Context, month time.Time) (*MonthlyStats, error)

	// Enabled reports whether records are actually kept.
	Enabled() bool

	Close() error
}

// Breakdown counts records within one group.
type Breakdown struct {
	Count        int   `json:"count"`
	SuccessCount int   `json:"success_count"`
	Bytes        int64 `json:"bytes"`
}

func (b *Breakdown) add(rec UsageRecord) {
	b.Count++
	b.Bytes += rec.Bytes
	if rec.Success {
		b.SuccessCount++
	}
}

// DailyStats summarizes one day of attempts.
type DailyStats struct {
	Date               string               `json:"date"`
	TotalRequests      int                  `json:"total_requests"`
	SuccessfulRequests int                  `json:"successful_requests"`
	SuccessRate        float64              `json:"success_rate"`
	TotalBytes         int64                `json:"total_bytes"`
	AvgDurationMS      float64              `json:"avg_duration_ms"`
	Operations         map[string]Breakdown `json:"operations"`
	Kinds              map[string]Breakdown `json:"kinds"`
}

// MonthlyStats summarizes one month of attempts with a cost estimate.
// Only non-direct traffic is billed.
type MonthlyStats struct {
	Month          string               `json:"month"`
	TotalRequests  int                  `json:"total_requests"`
	TotalBytes     int64                `json:"total_bytes"`
	ProxyBytes     int64                `json:"proxy_bytes"`
	ProxyGB        float64              `json:"proxy_gb"`
	PlanCostUSD    float64              `json:"plan_cost_usd"`
	PlanExceeded   bool                 `json:"plan_exceeded"`
	PayAsYouGoUSD  float64              `json:"pay_as_you_go_usd"`
	Recommendation string               `json:"recommendation"`
	Daily          map[string]Breakdown `json:"daily"`
}
