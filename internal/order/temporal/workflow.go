package temporal

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"ms-payment-verification/internal/models"
)

const autoApproveActivity = "AutoApprove"

type GracePeriodInput struct {
	OrderNumber string    `json:"order_number"`
	DueAt       time.Time `json:"due_at"`
}

// Approver is the order service's timer entry point.
type Approver interface {
	AutoApprove(ctx context.Context, orderNumber string) error
}

type Activities struct {
	Approver Approver
}

func (a *Activities) AutoApprove(ctx context.Context, orderNumber string) error {
	activity.GetLogger(ctx).Info("Auto-approving order", "orderNumber", orderNumber)
	err := a.Approver.AutoApprove(ctx, orderNumber)
	if errors.Is(err, models.ErrOrderNotFound) {
		return temporal.NewNonRetryableApplicationError(err.Error(), "OrderNotFound", err)
	}
	return err
}

// GracePeriodWorkflow sleeps until the grace period ends, then fires the
// auto-approval activity. The activity is a no-op when an admin got there first.
func GracePeriodWorkflow(ctx workflow.Context, in GracePeriodInput) error {
	logger := workflow.GetLogger(ctx)

	if wait := in.DueAt.Sub(workflow.Now(ctx)); wait > 0 {
		logger.Info("Grace period started", "orderNumber", in.OrderNumber, "wait", wait)
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})
	if err := workflow.ExecuteActivity(ctx, autoApproveActivity, in.OrderNumber).Get(ctx, nil); err != nil {
		logger.Error("Auto-approval failed", "orderNumber", in.OrderNumber, "error", err)
		return err
	}
	return nil
}
