package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID        string    `bun:"ticket_id,pk" json:"ticket_id"`
	OrderNumber     string    `bun:"order_number,notnull" json:"order_number"`
	EventID         string    `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID    string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	TicketTypeName  string    `bun:"ticket_type_name" json:"ticket_type_name"`
	PriceAtPurchase float64   `bun:"price_at_purchase" json:"price_at_purchase"`
	QRCode          []byte    `bun:"qr_code" json:"-"`
	FileName        string    `bun:"file_name" json:"file_name"`
	IssuedAt        time.Time `bun:"issued_at,notnull" json:"issued_at"`
}

// TicketArtifact is a generated ticket ready for delivery.
type TicketArtifact struct {
	Ticket Ticket
	PDF    []byte
}

// QRPayload is the verifiable content embedded (encrypted) in a ticket's QR code.
type QRPayload struct {
	TicketID     string    `json:"ticket_id"`
	OrderNumber  string    `json:"order_number"`
	EventID      string    `json:"event_id"`
	TicketTypeID string    `json:"ticket_type_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

// WhatsAppNotification is the out-of-band confirmation handed to the messaging relay.
type WhatsAppNotification struct {
	OrderNumber string    `json:"order_number"`
	Phone       string    `json:"phone"`
	Message     string    `json:"message"`
	TicketIDs   []string  `json:"ticket_ids"`
	Timestamp   time.Time `json:"timestamp"`
}
