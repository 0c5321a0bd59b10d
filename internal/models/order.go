package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ReviewPriorityNormal = "normal"
	ReviewPriorityHigh   = "high"
)

type OrderLine struct {
	TicketTypeID string  `json:"ticket_type_id"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderNumber        string        `bun:"order_number,pk" json:"order_number"`
	UserID             string        `bun:"user_id" json:"user_id"`
	EventID            string        `bun:"event_id,notnull" json:"event_id"`
	CustomerEmail      string        `bun:"customer_email,notnull" json:"customer_email"`
	CustomerPhone      string        `bun:"customer_phone" json:"customer_phone,omitempty"`
	PaymentMethod      PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	PaymentStatus      PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	TotalAmount        float64       `bun:"total_amount,notnull" json:"total_amount"`
	PaymentReference   string        `bun:"payment_reference,notnull" json:"payment_reference"`
	ExpectedRecipient  string        `bun:"expected_recipient" json:"expected_recipient,omitempty"`
	TransferScreenshot string        `bun:"transfer_screenshot" json:"transfer_screenshot,omitempty"`
	PaymentIntentID    string        `bun:"payment_intent_id" json:"payment_intent_id,omitempty"`
	VerificationNotes  string        `bun:"verification_notes" json:"verification_notes"`
	VerifiedBy         string        `bun:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt         time.Time     `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	AutoApprovalAt     time.Time     `bun:"auto_approval_at,nullzero" json:"auto_approval_at,omitempty"`
	FulfillmentClaimed time.Time     `bun:"fulfillment_claimed_at,nullzero" json:"-"`
	ReviewPriority     string        `bun:"review_priority" json:"review_priority"`
	Tickets            []OrderLine   `bun:"tickets" json:"tickets"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// TicketCount is the total number of tickets across all lines.
func (o *Order) TicketCount() int {
	n := 0
	for _, line := range o.Tickets {
		n += line.Quantity
	}
	return n
}

// StatusTransition is a conditional update: it applies only while the stored status equals From.
// Claimed marks a write by the holder of the fulfillment claim; every other write
// requires that no claim is held.
type StatusTransition struct {
	OrderNumber    string
	From           PaymentStatus
	To             PaymentStatus
	Note           string
	VerifiedBy     string
	AutoApprovalAt time.Time
	ReviewPriority string
	Claimed        bool
	At             time.Time
}

type OrderStatusEvent struct {
	OrderNumber    string        `json:"order_number"`
	EventID        string        `json:"event_id"`
	PreviousStatus PaymentStatus `json:"previous_status,omitempty"`
	Status         PaymentStatus `json:"status"`
	AutoApprovalAt *time.Time    `json:"auto_approval_at,omitempty"`
	Message        string        `json:"message,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
