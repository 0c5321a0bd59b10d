package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-payment-verification/internal/models"
)

// reserve takes line.Quantity out of available inventory in one guarded update.
func reserve(ctx context.Context, tx bun.Tx, eventID string, line models.OrderLine) error {
	res, err := tx.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity = quantity - ?", line.Quantity).
		Set("sold = sold + ?", line.Quantity).
		Where("id = ?", line.TicketTypeID).
		Where("event_id = ?", eventID).
		Where("quantity >= ?", line.Quantity).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", line.TicketTypeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	exists, err := tx.NewSelect().
		Model((*models.TicketType)(nil)).
		Where("id = ?", line.TicketTypeID).
		Where("event_id = ?", eventID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", models.ErrUnknownTicketType, line.TicketTypeID)
	}
	return fmt.Errorf("%w: %s", models.ErrInsufficientInventory, line.TicketTypeID)
}

func restore(ctx context.Context, tx bun.Tx, line models.OrderLine) error {
	_, err := tx.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity = quantity + ?", line.Quantity).
		Set("sold = sold - ?", line.Quantity).
		Where("id = ?", line.TicketTypeID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("restore %s: %w", line.TicketTypeID, err)
	}
	return nil
}
