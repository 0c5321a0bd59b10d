package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-payment-verification/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// SaveTickets inserts every ticket of one fulfillment in a single statement
func (d *DB) SaveTickets(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	if _, err := d.Bun.NewInsert().Model(&tickets).Exec(ctx); err != nil {
		return fmt.Errorf("insert %d tickets: %w", len(tickets), err)
	}
	return nil
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_number = ?", orderNumber).
		Order("issued_at ASC", "ticket_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := d.Bun.NewSelect().Model(ticket).Where("ticket_id = ?", ticketID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}
