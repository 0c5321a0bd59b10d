package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ms-payment-verification/internal/metrics"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/verification"
)

// ProcessPaymentVerification is the background pipeline for one order:
// extract, parse, score, decide, then persist and maybe fulfill.
func (s *OrderService) ProcessPaymentVerification(ctx context.Context, orderNumber string) error {
	start := s.now()
	defer func() {
		metrics.VerificationPipelineDuration.Observe(time.Since(start).Seconds())
	}()

	order, err := s.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderNumber, err)
	}
	if !Verifiable(order.PaymentStatus) {
		s.logger.Info("VERIFY", fmt.Sprintf("%s is %s, skipping verification", orderNumber, order.PaymentStatus))
		return nil
	}
	if order.TransferScreenshot == "" {
		s.logger.Info("VERIFY", fmt.Sprintf("%s has no screenshot yet", orderNumber))
		return nil
	}

	expected := verification.Expectation{
		Amount:    decimal.NewFromFloat(order.TotalAmount),
		Reference: order.PaymentReference,
		Recipient: order.ExpectedRecipient,
	}
	res := s.verifier.Verify(ctx, order.TransferScreenshot, expected)
	decision := verification.Decide(res)
	note := verification.FormatNote(res, decision)

	metrics.VerificationOutcomesTotal.WithLabelValues(string(decision.Tier)).Inc()
	metrics.VerificationConfidence.Observe(float64(res.Confidence))
	s.logger.LogVerification(orderNumber, res.Confidence, string(decision.Tier), fmt.Sprintf("%d issue(s)", len(res.Issues)))

	switch decision.Status {
	case models.StatusCompleted:
		return s.completeAutomatically(ctx, order, TriggerPipeline, note, verifiedByPipeline)

	case models.StatusPendingAutoApproval:
		dueAt := s.now().Add(decision.GracePeriod)
		tr := models.StatusTransition{
			From:           order.PaymentStatus,
			To:             models.StatusPendingAutoApproval,
			Note:           note,
			AutoApprovalAt: dueAt,
			ReviewPriority: decision.ReviewPriority,
		}
		if err := s.apply(ctx, order, tr, TriggerPipeline); err != nil {
			return s.lostOr(err, orderNumber, TriggerPipeline)
		}
		s.schedule(ctx, orderNumber, dueAt)
		return nil

	default:
		tr := models.StatusTransition{
			From:           order.PaymentStatus,
			To:             decision.Status,
			Note:           note,
			ReviewPriority: decision.ReviewPriority,
		}
		if err := s.apply(ctx, order, tr, TriggerPipeline); err != nil {
			return s.lostOr(err, orderNumber, TriggerPipeline)
		}
		return nil
	}
}

// AutoApprove is the grace-period timer callback. It is safe to call any number of times.
func (s *OrderService) AutoApprove(ctx context.Context, orderNumber string) error {
	order, err := s.store.GetOrder(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderNumber, err)
	}

	if order.PaymentStatus != models.StatusPendingAutoApproval {
		s.raceLost(orderNumber, TriggerTimer, order.PaymentStatus)
		return nil
	}

	if !order.AutoApprovalAt.IsZero() && order.AutoApprovalAt.After(s.now()) {
		s.logger.Debug("SCHEDULER", fmt.Sprintf("%s fired early, due %s", orderNumber, order.AutoApprovalAt.Format(time.RFC3339)))
		s.schedule(ctx, orderNumber, order.AutoApprovalAt)
		return nil
	}

	return s.completeAutomatically(ctx, order, TriggerTimer, "Grace period elapsed, payment auto-approved.", verifiedByAutoApproval)
}

// RecoverAutoApprovals drops abandoned fulfillment claims, then fires AutoApprove for
// every grace period that ended while nothing was listening. It returns how many
// orders were processed without error.
func (s *OrderService) RecoverAutoApprovals(ctx context.Context, now time.Time) (int, error) {
	released, err := s.store.ReleaseStaleClaims(ctx, now.Add(-fulfillmentClaimLease))
	if err != nil {
		s.logger.Error("SCHEDULER", fmt.Sprintf("Failed to release stale fulfillment claims: %v", err))
	}
	for _, orderNumber := range released {
		s.logger.Warn("FULFILL", fmt.Sprintf("Released fulfillment claim on %s held longer than %s", orderNumber, fulfillmentClaimLease))
	}

	due, err := s.store.ListDueAutoApprovals(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due auto approvals: %w", err)
	}

	processed := 0
	for _, orderNumber := range due {
		if err := s.AutoApprove(ctx, orderNumber); err != nil {
			s.logger.Error("SCHEDULER", fmt.Sprintf("Recovery of %s failed: %v", orderNumber, err))
			continue
		}
		processed++
	}
	if len(due) > 0 {
		s.logger.Info("SCHEDULER", fmt.Sprintf("Recovery sweep processed %d/%d overdue auto-approvals", processed, len(due)))
	}
	return processed, nil
}

// completeAutomatically claims the order, fulfills, then completes. If fulfillment
// fails the order goes to quick review so it is never completed without tickets.
func (s *OrderService) completeAutomatically(ctx context.Context, order *models.Order, trigger Trigger, note, verifiedBy string) error {
	if err := CheckTransition(order.PaymentStatus, models.StatusCompleted, trigger); err != nil {
		return err
	}
	if err := s.store.ClaimFulfillment(ctx, order.OrderNumber, order.PaymentStatus, s.now()); err != nil {
		return s.lostOr(err, order.OrderNumber, trigger)
	}

	event, err := s.store.GetEvent(ctx, order.EventID)
	if err == nil {
		_, err = s.fulfiller.Fulfill(ctx, order, event)
	}
	if err != nil {
		s.logger.Error("FULFILL", fmt.Sprintf("%s could not be fulfilled, routing to quick review: %v", order.OrderNumber, err))
		tr := models.StatusTransition{
			From:           order.PaymentStatus,
			To:             models.StatusPendingQuickReview,
			Note:           fmt.Sprintf("%s Fulfillment failed (%v); sent to quick review.", note, err),
			ReviewPriority: models.ReviewPriorityHigh,
			Claimed:        true,
		}
		if err := s.apply(ctx, order, tr, trigger); err != nil {
			s.release(ctx, order.OrderNumber)
			return s.lostOr(err, order.OrderNumber, trigger)
		}
		return nil
	}

	tr := models.StatusTransition{
		From:       order.PaymentStatus,
		To:         models.StatusCompleted,
		Note:       note,
		VerifiedBy: verifiedBy,
		Claimed:    true,
	}
	if err := s.apply(ctx, order, tr, trigger); err != nil {
		s.logger.Error("RACE", fmt.Sprintf("%s: tickets issued by %s but completion failed: %v", order.OrderNumber, trigger, err))
		return fmt.Errorf("complete %s: %w", order.OrderNumber, err)
	}
	return nil
}

// release drops a fulfillment claim. A failure is left for the recovery sweep.
func (s *OrderService) release(ctx context.Context, orderNumber string) {
	if err := s.store.ReleaseFulfillment(ctx, orderNumber); err != nil {
		s.logger.Error("FULFILL", fmt.Sprintf("Failed to release fulfillment claim on %s: %v", orderNumber, err))
	}
}

// lostOr swallows a lost conditional update and passes anything else through.
func (s *OrderService) lostOr(err error, orderNumber string, trigger Trigger) error {
	if errors.Is(err, models.ErrStatusChanged) {
		s.raceLost(orderNumber, trigger, "")
		return nil
	}
	return fmt.Errorf("transition %s: %w", orderNumber, err)
}

func (s *OrderService) schedule(ctx context.Context, orderNumber string, dueAt time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(ctx, orderNumber, dueAt); err != nil {
		// the recovery sweep still picks it up
		s.logger.Error("SCHEDULER", fmt.Sprintf("Failed to schedule auto-approval for %s: %v", orderNumber, err))
	}
}
