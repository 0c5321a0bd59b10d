package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-payment-verification/internal/models"
)

type VerifyAction string

const (
	ActionApprove VerifyAction = "approve"
	ActionReject  VerifyAction = "reject"
)

type VerifyRequest struct {
	OrderNumber string       `json:"-"`
	Action      VerifyAction `json:"action"`
	AdminID     string       `json:"-"`
	Notes       string       `json:"notes"`
}

// VerifyOrder applies an admin decision. Approval claims the order and issues tickets
// before the status changes; rejection returns the reserved inventory in the same
// transaction and loses to any claim already held.
func (s *OrderService) VerifyOrder(ctx context.Context, req VerifyRequest) (*models.Order, error) {
	var target models.PaymentStatus
	var verb string
	switch req.Action {
	case ActionApprove:
		target, verb = models.StatusCompleted, "approved"
	case ActionReject:
		target, verb = models.StatusFailed, "rejected"
	default:
		return nil, NewInputError(`action must be "approve" or "reject"`)
	}

	order, err := s.GetOrder(ctx, req.OrderNumber)
	if err != nil {
		return nil, err
	}

	if err := CheckTransition(order.PaymentStatus, target, TriggerAdmin); err != nil {
		return nil, NewConflictError(
			fmt.Sprintf("Order cannot be verified while %s", order.PaymentStatus),
			err.Error(), err)
	}

	note := fmt.Sprintf("Admin %s %s the payment.", req.AdminID, verb)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		note += " Notes: " + notes
	}

	tr := models.StatusTransition{
		From:       order.PaymentStatus,
		To:         target,
		Note:       note,
		VerifiedBy: req.AdminID,
	}

	if req.Action == ActionApprove {
		if err := s.store.ClaimFulfillment(ctx, order.OrderNumber, order.PaymentStatus, s.now()); err != nil {
			return nil, s.adminConflict(order, err)
		}
		event, err := s.store.GetEvent(ctx, order.EventID)
		if err != nil {
			s.release(ctx, order.OrderNumber)
			return nil, NewInternalError("load event", err)
		}
		if _, err := s.fulfiller.Fulfill(ctx, order, event); err != nil {
			s.logger.Error("FULFILL", fmt.Sprintf("Approval of %s aborted: %v", order.OrderNumber, err))
			s.release(ctx, order.OrderNumber)
			return nil, NewFulfillmentError(err)
		}
		tr.Claimed = true
		if err := s.apply(ctx, order, tr, TriggerAdmin); err != nil {
			return nil, NewInternalError("complete approved order", err)
		}
	} else {
		tr.OrderNumber = order.OrderNumber
		tr.At = s.now()
		tr.Note = s.stampNote(tr.Note)
		if err := s.store.RejectAndRestore(ctx, tr, order.Tickets); err != nil {
			return nil, s.adminConflict(order, err)
		}
		s.recordTransition(ctx, order, tr, TriggerAdmin)
	}

	s.logger.LogOrder(strings.ToUpper(string(req.Action)), order.OrderNumber, fmt.Sprintf("by %s", req.AdminID))
	return s.GetOrder(ctx, order.OrderNumber)
}

func (s *OrderService) adminConflict(order *models.Order, err error) error {
	if errors.Is(err, models.ErrFulfillmentInProgress) {
		s.raceLost(order.OrderNumber, TriggerAdmin, order.PaymentStatus)
		return NewConflictError("Tickets are already being issued for this order", err.Error(), err)
	}
	if errors.Is(err, models.ErrStatusChanged) {
		s.raceLost(order.OrderNumber, TriggerAdmin, order.PaymentStatus)
		return NewConflictError("Order changed while it was being verified", err.Error(), err)
	}
	if errors.Is(err, models.ErrOrderNotFound) {
		return NewNotFoundError("Order not found", err)
	}
	return NewInternalError("verify order", err)
}
