package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-payment-verification/internal/logger"
)

const (
	// AutoApprovalKey is the sorted set of pending grace periods: member = order number, score = due unix millis.
	AutoApprovalKey = "auto_approvals"

	claimBatch = 100
)

type Redis struct {
	Client       *redis.Client
	Logger       *logger.Logger
	PollInterval time.Duration
}

type ScheduledJob struct {
	OrderNumber string    `json:"order_number"`
	DueAt       time.Time `json:"due_at"`
}

func NewRedis(client *redis.Client, log *logger.Logger, pollInterval time.Duration) *Redis {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Redis{
		Client:       client,
		Logger:       log,
		PollInterval: pollInterval,
	}
}

// Schedule stores (or moves) the due time for an order's auto-approval
func (r *Redis) Schedule(ctx context.Context, orderNumber string, dueAt time.Time) error {
	err := r.Client.ZAdd(ctx, AutoApprovalKey, &redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: orderNumber,
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule auto-approval for %s: %w", orderNumber, err)
	}
	r.Logger.Debug("REDIS", fmt.Sprintf("Auto-approval for %s scheduled at %s", orderNumber, dueAt.Format(time.RFC3339)))
	return nil
}

// Claim removes and returns the jobs due at now. A member only comes back from
// the ZREM of one caller, so each job is handed to exactly one poller.
func (r *Redis) Claim(ctx context.Context, now time.Time) ([]string, error) {
	due, err := r.Client.ZRangeByScore(ctx, AutoApprovalKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		return nil, err
	}

	claimed := make([]string, 0, len(due))
	for _, orderNumber := range due {
		removed, err := r.Client.ZRem(ctx, AutoApprovalKey, orderNumber).Result()
		if err != nil {
			return claimed, err
		}
		if removed == 1 {
			claimed = append(claimed, orderNumber)
		}
	}
	return claimed, nil
}

// Run polls for due jobs until ctx is done. Handler errors are logged only;
// the database recovery sweep retries anything left behind.
func (r *Redis) Run(ctx context.Context, handler func(ctx context.Context, orderNumber string) error) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	r.Logger.Info("SCHEDULER", fmt.Sprintf("Redis auto-approval poller started (every %s)", r.PollInterval))
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("SCHEDULER", "Redis auto-approval poller stopped")
			return
		case now := <-ticker.C:
			r.fire(ctx, now, handler)
		}
	}
}

func (r *Redis) fire(ctx context.Context, now time.Time, handler func(ctx context.Context, orderNumber string) error) {
	claimed, err := r.Claim(ctx, now)
	if err != nil {
		r.Logger.Error("REDIS", fmt.Sprintf("Failed to claim due auto-approvals: %v", err))
	}
	for _, orderNumber := range claimed {
		if err := handler(ctx, orderNumber); err != nil {
			r.Logger.Error("SCHEDULER", fmt.Sprintf("Auto-approval for %s failed: %v", orderNumber, err))
		}
	}
}

// Pending lists every scheduled job ordered by due time
func (r *Redis) Pending(ctx context.Context) ([]ScheduledJob, error) {
	entries, err := r.Client.ZRangeWithScores(ctx, AutoApprovalKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]ScheduledJob, 0, len(entries))
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		jobs = append(jobs, ScheduledJob{OrderNumber: member, DueAt: time.UnixMilli(int64(z.Score))})
	}
	return jobs, nil
}
