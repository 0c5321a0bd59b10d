package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
	ErrCaptureNotConfirmed    = errors.New("card payment not captured")
)

// IntentGetter is satisfied by the Stripe client's PaymentIntents resource.
type IntentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeService confirms that a card payment was captured before an order is accepted
type StripeService struct {
	intents  IntentGetter
	currency string
	log      *logger.Logger
}

// NewStripeService creates a new instance of StripeService
func NewStripeService(cfg config.StripeConfig, log *logger.Logger) (*StripeService, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return NewStripeServiceWithIntents(sc.PaymentIntents, cfg.Currency, log), nil
}

func NewStripeServiceWithIntents(intents IntentGetter, currency string, log *logger.Logger) *StripeService {
	return &StripeService{intents: intents, currency: strings.ToLower(currency), log: log}
}

// ConfirmCapture checks the intent succeeded and captured exactly amount in the configured currency.
func (s *StripeService) ConfirmCapture(ctx context.Context, paymentIntentID string, amount float64) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(paymentIntentID, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", paymentIntentID, err))
		return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: intent %s is %s", ErrCaptureNotConfirmed, pi.ID, pi.Status)
	}
	if s.currency != "" && !strings.EqualFold(string(pi.Currency), s.currency) {
		return fmt.Errorf("%w: intent %s is in %s, expected %s", ErrCaptureNotConfirmed, pi.ID, pi.Currency, s.currency)
	}

	// Stripe uses the smallest currency unit
	expected := decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
	if pi.AmountReceived != expected {
		return fmt.Errorf("%w: intent %s received %d, order total is %d", ErrCaptureNotConfirmed, pi.ID, pi.AmountReceived, expected)
	}

	s.log.Info("STRIPE", fmt.Sprintf("Payment intent %s confirmed for %s %.2f", pi.ID, strings.ToUpper(s.currency), amount))
	return nil
}
