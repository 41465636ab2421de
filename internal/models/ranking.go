package models

import "time"

// ProductMetrics is the denormalized per-product counter row maintained by
// the product-metrics consumer. Updates are version-gated: an event with
// eventVersion <= Version is a no-op.
type ProductMetrics struct {
	ProductID  int64     `json:"product_id"`
	LikeCount  int64     `json:"like_count"`
	SalesCount int64     `json:"sales_count"`
	ViewCount  int64     `json:"view_count"`
	Version    int64     `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PeriodType selects the leaderboard window.
type PeriodType string

const (
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// PeriodRange derives [start, end) for a period containing targetDate.
// WEEKLY starts on the Monday of the week; MONTHLY on the first of the month.
func PeriodRange(periodType PeriodType, targetDate time.Time) (time.Time, time.Time, error) {
	day := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	switch periodType {
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, NewAppError(ErrorBadRequest, "unknown period type: %q", periodType)
	}
}

// ProductRankScore is the per-run temp aggregation row for Step 1 of the
// batch ranker.
type ProductRankScore struct {
	ProductID  int64   `json:"product_id"`
	LikeCount  int64   `json:"like_count"`
	SalesCount int64   `json:"sales_count"`
	ViewCount  int64   `json:"view_count"`
	Score      float64 `json:"score"`
}

// ProductRank is a materialized leaderboard row, unique on
// (period_type, period_start_date, product_id).
type ProductRank struct {
	PeriodType      PeriodType `json:"period_type"`
	PeriodStartDate time.Time  `json:"period_start_date"`
	ProductID       int64      `json:"product_id"`
	Rank            int        `json:"rank"`
	LikeCount       int64      `json:"like_count"`
	SalesCount      int64      `json:"sales_count"`
	ViewCount       int64      `json:"view_count"`
	Score           float64    `json:"score"`
}
