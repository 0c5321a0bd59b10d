package temporal

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

type Scheduler struct {
	Client    client.Client
	TaskQueue string
	Logger    *logger.Logger
}

func NewScheduler(c client.Client, taskQueue string, log *logger.Logger) *Scheduler {
	return &Scheduler{Client: c, TaskQueue: taskQueue, Logger: log}
}

// WorkflowID is unique per (order, due time) so a reschedule from a timer
// that fired early never collides with the run that is finishing.
func WorkflowID(orderNumber string, dueAt time.Time) string {
	return fmt.Sprintf("auto-approval-%s-%d", orderNumber, dueAt.UnixMilli())
}

func (s *Scheduler) Schedule(ctx context.Context, orderNumber string, dueAt time.Time) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(orderNumber, dueAt),
		TaskQueue: s.TaskQueue,
	}
	run, err := s.Client.ExecuteWorkflow(ctx, opts, GracePeriodWorkflow, GracePeriodInput{
		OrderNumber: orderNumber,
		DueAt:       dueAt,
	})
	if err != nil {
		return fmt.Errorf("start grace period workflow for %s: %w", orderNumber, err)
	}
	s.Logger.Debug("TEMPORAL", fmt.Sprintf("Grace period workflow %s started (run %s)", run.GetID(), run.GetRunID()))
	return nil
}

func Dial(cfg config.TemporalConfig) (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
}

// NewWorker registers the grace period workflow and its activity on the task queue
func NewWorker(c client.Client, taskQueue string, approver Approver) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{
		Identity: "payment-verification-" + hostname(),
	})
	w.RegisterWorkflow(GracePeriodWorkflow)
	w.RegisterActivity(&Activities{Approver: approver})
	return w
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
