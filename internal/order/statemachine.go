package order

import (
	"errors"
	"fmt"

	"ms-payment-verification/internal/models"
)

// Trigger names who is asking for a transition.
type Trigger string

const (
	TriggerPipeline Trigger = "pipeline"
	TriggerTimer    Trigger = "timer"
	TriggerAdmin    Trigger = "admin"
	TriggerCard     Trigger = "card"
)

var ErrTransitionNotAllowed = errors.New("transition not allowed")

type transitionKey struct {
	from    models.PaymentStatus
	to      models.PaymentStatus
	trigger Trigger
}

// transitions is the complete set of legal moves. Terminal states have no rows.
var transitions = map[transitionKey]struct{}{}

func allow(from models.PaymentStatus, trigger Trigger, to ...models.PaymentStatus) {
	for _, t := range to {
		transitions[transitionKey{from: from, to: t, trigger: trigger}] = struct{}{}
	}
}

func init() {
	allow(models.StatusPending, TriggerCard, models.StatusCompleted, models.StatusFailed, models.StatusPendingQuickReview)

	for _, from := range []models.PaymentStatus{models.StatusPendingVerification, models.StatusPendingWhatsAppVerification} {
		allow(from, TriggerPipeline, models.StatusCompleted, models.StatusPendingAutoApproval, models.StatusPendingQuickReview)
		allow(from, TriggerAdmin, models.StatusCompleted, models.StatusFailed)
	}

	allow(models.StatusPendingAutoApproval, TriggerTimer, models.StatusCompleted, models.StatusPendingQuickReview)
	allow(models.StatusPendingAutoApproval, TriggerAdmin, models.StatusCompleted, models.StatusFailed)

	allow(models.StatusPendingQuickReview, TriggerAdmin, models.StatusCompleted, models.StatusFailed)
}

// CheckTransition returns ErrTransitionNotAllowed unless (from, to, trigger) is in the table.
func CheckTransition(from, to models.PaymentStatus, trigger Trigger) error {
	if _, ok := transitions[transitionKey{from: from, to: to, trigger: trigger}]; !ok {
		return fmt.Errorf("%w: %s -> %s by %s", ErrTransitionNotAllowed, from, to, trigger)
	}
	return nil
}

// Verifiable reports whether the pipeline may still act on an order in this status.
func Verifiable(status models.PaymentStatus) bool {
	return CheckTransition(status, models.StatusCompleted, TriggerPipeline) == nil
}
