package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-payment-verification/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → reserve every line and insert the order, all or nothing
func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if order.PaymentIntentID != "" {
			used, err := tx.NewSelect().
				Model((*models.Order)(nil)).
				Where("payment_intent_id = ?", order.PaymentIntentID).
				Exists(ctx)
			if err != nil {
				return err
			}
			if used {
				return fmt.Errorf("%w: %s", models.ErrPaymentIntentUsed, order.PaymentIntentID)
			}
		}
		for _, line := range order.Tickets {
			if err := reserve(ctx, tx, order.EventID, line); err != nil {
				return err
			}
		}
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
}

// GetOrder → fetch one order by its number
func (d *DB) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_number = ?", orderNumber).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetEvent → fetch an event with its ticket types
func (d *DB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("TicketTypes").
		Where("?TableAlias.id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// TransitionStatus → conditional update on the current status
func (d *DB) TransitionStatus(ctx context.Context, tr models.StatusTransition) error {
	return transition(ctx, d.Bun, tr)
}

// RejectAndRestore → move to the rejected status and give every line back to inventory
func (d *DB) RejectAndRestore(ctx context.Context, tr models.StatusTransition, lines []models.OrderLine) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := transition(ctx, tx, tr); err != nil {
			return err
		}
		for _, line := range lines {
			if err := restore(ctx, tx, line); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimFulfillment → take the right to issue tickets while the status is still from.
// At most one caller holds the claim; status writes by anyone else fail until it is released.
func (d *DB) ClaimFulfillment(ctx context.Context, orderNumber string, from models.PaymentStatus, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("fulfillment_claimed_at = ?", at.UTC()).
		Set("updated_at = ?", at.UTC()).
		Where("order_number = ?", orderNumber).
		Where("payment_status = ?", from).
		Where("fulfillment_claimed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("claim fulfillment: %w", err)
	}
	return d.noRowsMeans(ctx, res, orderNumber)
}

// ReleaseFulfillment → give up a claim without changing the status
func (d *DB) ReleaseFulfillment(ctx context.Context, orderNumber string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("fulfillment_claimed_at = NULL").
		Where("order_number = ?", orderNumber).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses)).
		Exec(ctx)
	return err
}

// ReleaseStaleClaims → drop claims on open orders taken before the cutoff
func (d *DB) ReleaseStaleClaims(ctx context.Context, before time.Time) ([]string, error) {
	var orderNumbers []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("order_number").
		Where("fulfillment_claimed_at < ?", before.UTC()).
		Where("payment_status NOT IN (?)", bun.In(terminalStatuses)).
		Scan(ctx, &orderNumbers)
	if err != nil || len(orderNumbers) == 0 {
		return nil, err
	}
	_, err = d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("fulfillment_claimed_at = NULL").
		Where("order_number IN (?)", bun.In(orderNumbers)).
		Where("fulfillment_claimed_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return orderNumbers, nil
}

// AttachScreenshot → set the relayed screenshot once, while the order waits for it
func (d *DB) AttachScreenshot(ctx context.Context, orderNumber, imageRef string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("transfer_screenshot = ?", imageRef).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_number = ?", orderNumber).
		Where("payment_status = ?", models.StatusPendingWhatsAppVerification).
		Where("(transfer_screenshot IS NULL OR transfer_screenshot = '')").
		Exec(ctx)
	if err != nil {
		return err
	}
	return d.noRowsMeans(ctx, res, orderNumber)
}

// ListDueAutoApprovals → order numbers whose grace period ended at or before now
func (d *DB) ListDueAutoApprovals(ctx context.Context, now time.Time) ([]string, error) {
	var orderNumbers []string
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("order_number").
		Where("payment_status = ?", models.StatusPendingAutoApproval).
		Where("auto_approval_at <= ?", now.UTC()).
		Order("auto_approval_at ASC").
		Scan(ctx, &orderNumbers)
	if err != nil {
		return nil, err
	}
	return orderNumbers, nil
}

// ListReviewQueue → quick reviews first, then grace periods, high priority and oldest first
func (d *DB) ListReviewQueue(ctx context.Context, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("payment_status IN (?)", bun.In([]models.PaymentStatus{models.StatusPendingQuickReview, models.StatusPendingAutoApproval})).
		OrderExpr("CASE payment_status WHEN ? THEN 0 ELSE 1 END", models.StatusPendingQuickReview).
		OrderExpr("CASE review_priority WHEN ? THEN 0 ELSE 1 END", models.ReviewPriorityHigh).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func transition(ctx context.Context, db bun.IDB, tr models.StatusTransition) error {
	q := db.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_status = ?", tr.To).
		Set("updated_at = ?", tr.At.UTC())

	if tr.Note != "" {
		q = q.Set("verification_notes = COALESCE(verification_notes, '') || ?", tr.Note)
	}
	if tr.To.IsTerminal() {
		q = q.Set("verified_at = ?", tr.At.UTC()).Set("verified_by = ?", tr.VerifiedBy)
	}
	if tr.ReviewPriority != "" {
		q = q.Set("review_priority = ?", tr.ReviewPriority)
	}
	switch {
	case tr.To == models.StatusPendingAutoApproval:
		q = q.Set("auto_approval_at = ?", tr.AutoApprovalAt.UTC())
	case tr.From == models.StatusPendingAutoApproval:
		q = q.Set("auto_approval_at = NULL")
	}
	if tr.Claimed {
		q = q.Where("fulfillment_claimed_at IS NOT NULL")
		if tr.To != models.StatusCompleted {
			q = q.Set("fulfillment_claimed_at = NULL")
		}
	} else {
		q = q.Where("fulfillment_claimed_at IS NULL")
	}

	res, err := q.
		Where("order_number = ?", tr.OrderNumber).
		Where("payment_status = ?", tr.From).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return whyNotUpdated(ctx, db, tr.OrderNumber)
	}
	return nil
}

var terminalStatuses = []models.PaymentStatus{models.StatusCompleted, models.StatusFailed, models.StatusRefunded}

// whyNotUpdated tells a missing order from a lost race, and a lost race from a held claim.
func whyNotUpdated(ctx context.Context, db bun.IDB, orderNumber string) error {
	var order models.Order
	err := db.NewSelect().
		Model(&order).
		Column("payment_status", "fulfillment_claimed_at").
		Where("order_number = ?", orderNumber).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !order.FulfillmentClaimed.IsZero() && !order.PaymentStatus.IsTerminal() {
		return models.ErrFulfillmentInProgress
	}
	return models.ErrStatusChanged
}

func (d *DB) noRowsMeans(ctx context.Context, res sql.Result, orderNumber string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return whyNotUpdated(ctx, d.Bun, orderNumber)
}
