package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Venue     string    `bun:"venue" json:"venue"`
	StartDate time.Time `bun:"start_date,notnull" json:"start_date"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	TicketTypes []TicketType `bun:"rel:has-many,join:id=event_id" json:"ticket_types,omitempty"`
}

// TicketType holds the inventory counters that order creation and rejection mutate.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types"`

	ID       string  `bun:"id,pk" json:"id"`
	EventID  string  `bun:"event_id,notnull" json:"event_id"`
	Name     string  `bun:"name,notnull" json:"name"`
	Price    float64 `bun:"price,notnull" json:"price"`
	Quantity int     `bun:"quantity,notnull" json:"quantity"`
	Sold     int     `bun:"sold,notnull" json:"sold"`
}
