package models

import "fmt"

type PaymentStatus string

const (
	StatusPending                     PaymentStatus = "pending"
	StatusPendingVerification         PaymentStatus = "pending_verification"
	StatusPendingWhatsAppVerification PaymentStatus = "pending_whatsapp_verification"
	StatusPendingAutoApproval         PaymentStatus = "pending_auto_approval"
	StatusPendingQuickReview          PaymentStatus = "pending_quick_review"
	StatusCompleted                   PaymentStatus = "completed"
	StatusFailed                      PaymentStatus = "failed"
	StatusRefunded                    PaymentStatus = "refunded"
)

// IsTerminal reports whether no further payment-status mutation is allowed.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingVerification, StatusPendingWhatsAppVerification,
		StatusPendingAutoApproval, StatusPendingQuickReview,
		StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard                 PaymentMethod = "card"
	MethodMobileMoneyManual    PaymentMethod = "mobile_money_manual"
	MethodMobileMoneyWhatsApp  PaymentMethod = "mobile_money_whatsapp"
	MethodBankTransfer         PaymentMethod = "bank_transfer"
	MethodBankTransferWhatsApp PaymentMethod = "bank_transfer_whatsapp"
)

// RequiresScreenshot is true for methods where the proof of payment is uploaded with the order.
func (m PaymentMethod) RequiresScreenshot() bool {
	return m == MethodMobileMoneyManual || m == MethodBankTransfer
}

// IsWhatsAppRelay is true for methods whose screenshot arrives later through the WhatsApp relay.
func (m PaymentMethod) IsWhatsAppRelay() bool {
	return m == MethodMobileMoneyWhatsApp || m == MethodBankTransferWhatsApp
}

// InitialStatus returns the status an order enters at creation time for this payment method.
// Card orders are created as pending and moved to completed once capture is confirmed
// and tickets are issued.
func (m PaymentMethod) InitialStatus() (PaymentStatus, error) {
	switch {
	case m.RequiresScreenshot():
		return StatusPendingVerification, nil
	case m.IsWhatsAppRelay():
		return StatusPendingWhatsAppVerification, nil
	case m == MethodCard:
		return StatusPending, nil
	}
	return "", fmt.Errorf("unsupported payment method %q", m)
}
