package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-payment-verification/internal/models"
)

// Service handles analytics operations
type Service struct {
	db *bun.DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// StatusBreakdown is the number and value of an event's orders in one payment status
type StatusBreakdown struct {
	Status models.PaymentStatus `json:"status" bun:"payment_status"`
	Orders int                  `json:"orders" bun:"orders"`
	Amount float64              `json:"amount" bun:"amount"`
}

// DailySalesMetrics contains completed revenue for a single day
type DailySalesMetrics struct {
	Date        string  `json:"date"`
	Revenue     float64 `json:"revenue"`
	OrdersCount int     `json:"orders"`
}

// VerificationSummary shows where an event's payments sit in the verification pipeline
type VerificationSummary struct {
	EventID              string              `json:"event_id"`
	TotalOrders          int                 `json:"total_orders"`
	ByStatus             []StatusBreakdown   `json:"by_status"`
	ReviewBacklog        int                 `json:"review_backlog"`
	CompletedRevenue     float64             `json:"completed_revenue"`
	AutomaticCompletions int                 `json:"automatic_completions"`
	ManualCompletions    int                 `json:"manual_completions"`
	DailyCompleted       []DailySalesMetrics `json:"daily_completed"`
}

// VerificationSummary returns per-status counts and amounts for an event. The review
// backlog is every order an admin may still act on before it settles by itself.
func (s *Service) VerificationSummary(ctx context.Context, eventID string) (*VerificationSummary, error) {
	var breakdown []StatusBreakdown
	err := s.db.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("payment_status").
		ColumnExpr("COUNT(*) AS orders").
		ColumnExpr("COALESCE(SUM(total_amount), 0) AS amount").
		Where("event_id = ?", eventID).
		Group("payment_status").
		Order("payment_status").
		Scan(ctx, &breakdown)
	if err != nil {
		return nil, err
	}

	summary := &VerificationSummary{
		EventID:        eventID,
		ByStatus:       make([]StatusBreakdown, 0, len(breakdown)),
		DailyCompleted: []DailySalesMetrics{},
	}
	revenue := decimal.Zero
	for _, row := range breakdown {
		summary.ByStatus = append(summary.ByStatus, row)
		summary.TotalOrders += row.Orders
		switch row.Status {
		case models.StatusPendingQuickReview, models.StatusPendingAutoApproval:
			summary.ReviewBacklog += row.Orders
		case models.StatusCompleted:
			revenue = revenue.Add(decimal.NewFromFloat(row.Amount))
		}
	}
	summary.CompletedRevenue = revenue.Round(2).InexactFloat64()

	var completed []models.Order
	err = s.db.NewSelect().
		Model(&completed).
		Column("order_number", "total_amount", "verified_by", "verified_at", "updated_at").
		Where("event_id = ?", eventID).
		Where("payment_status = ?", models.StatusCompleted).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	daily := map[string]decimal.Decimal{}
	counts := map[string]int{}
	var days []string
	for _, o := range completed {
		if strings.HasPrefix(o.VerifiedBy, "system:") {
			summary.AutomaticCompletions++
		} else {
			summary.ManualCompletions++
		}

		at := o.VerifiedAt
		if at.IsZero() {
			at = o.UpdatedAt
		}
		day := at.UTC().Format(time.DateOnly)
		if _, seen := daily[day]; !seen {
			days = append(days, day)
			daily[day] = decimal.Zero
		}
		daily[day] = daily[day].Add(decimal.NewFromFloat(o.TotalAmount))
		counts[day]++
	}
	sort.Strings(days)
	for _, day := range days {
		summary.DailyCompleted = append(summary.DailyCompleted, DailySalesMetrics{
			Date:        day,
			Revenue:     daily[day].Round(2).InexactFloat64(),
			OrdersCount: counts[day],
		})
	}

	return summary, nil
}
