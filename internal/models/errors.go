package models

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrStatusChanged         = errors.New("order status changed concurrently")
	ErrUnknownTicketType     = errors.New("unknown ticket type")
	ErrInsufficientInventory = errors.New("insufficient ticket inventory")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrPaymentIntentUsed     = errors.New("payment intent already used by another order")

	// ErrFulfillmentInProgress is a lost race against a caller that is issuing tickets.
	ErrFulfillmentInProgress = fmt.Errorf("%w: fulfillment in progress", ErrStatusChanged)
)
