package verification

import (
	"fmt"
	"strings"
	"time"

	"ms-payment-verification/internal/models"
)

type Tier string

const (
	TierFailOpen    Tier = "fail_open"
	TierImmediate   Tier = "immediate"
	TierGracePeriod Tier = "grace_period"
	TierQuickReview Tier = "quick_review"
)

const (
	// GracePeriodThreshold is the lowest confidence that still auto-approves after a delay.
	GracePeriodThreshold = 20
	GracePeriod          = 5 * time.Minute
)

// Decision is what the order should become after a verification attempt.
type Decision struct {
	Tier           Tier
	Status         models.PaymentStatus
	FulfillNow     bool
	GracePeriod    time.Duration
	ReviewPriority string
}

// Decide routes a result to its tier. Bands are checked top to bottom.
func Decide(res Result) Decision {
	switch {
	case res.ExtractionFailed:
		return Decision{Tier: TierFailOpen, Status: models.StatusCompleted, FulfillNow: true, ReviewPriority: models.ReviewPriorityNormal}
	case res.IsValid && res.Confidence >= ValidThreshold:
		return Decision{Tier: TierImmediate, Status: models.StatusCompleted, FulfillNow: true, ReviewPriority: models.ReviewPriorityNormal}
	case res.Confidence >= GracePeriodThreshold:
		return Decision{Tier: TierGracePeriod, Status: models.StatusPendingAutoApproval, GracePeriod: GracePeriod, ReviewPriority: models.ReviewPriorityNormal}
	default:
		return Decision{Tier: TierQuickReview, Status: models.StatusPendingQuickReview, ReviewPriority: models.ReviewPriorityHigh}
	}
}

// FormatNote renders the admin-facing summary of one attempt.
func FormatNote(res Result, d Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Auto-verification: %d%% confidence, tier %s -> %s.", res.Confidence, d.Tier, d.Status)
	if len(res.Issues) == 0 {
		b.WriteString(" No issues found.")
		return b.String()
	}
	b.WriteString(" Issues: ")
	b.WriteString(strings.Join(res.Issues, "; "))
	b.WriteString(".")
	return b.String()
}
