package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/metrics"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/receipt"
	"ms-payment-verification/internal/utils"
	"ms-payment-verification/internal/verification"
)

type Store interface {
	// CreateOrder reserves inventory for every line and inserts the order in one transaction.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	// TransitionStatus applies tr only while the stored status equals tr.From.
	TransitionStatus(ctx context.Context, tr models.StatusTransition) error
	// RejectAndRestore is TransitionStatus plus returning each line's quantity to inventory, atomically.
	RejectAndRestore(ctx context.Context, tr models.StatusTransition, lines []models.OrderLine) error
	AttachScreenshot(ctx context.Context, orderNumber, imageRef string) error
	// ClaimFulfillment reserves the right to issue tickets while the status equals from.
	// Transitions without tr.Claimed fail with models.ErrFulfillmentInProgress until the claim is released.
	ClaimFulfillment(ctx context.Context, orderNumber string, from models.PaymentStatus, at time.Time) error
	ReleaseFulfillment(ctx context.Context, orderNumber string) error
	ReleaseStaleClaims(ctx context.Context, before time.Time) ([]string, error)
	ListDueAutoApprovals(ctx context.Context, now time.Time) ([]string, error)
	ListReviewQueue(ctx context.Context, limit int) ([]models.Order, error)
}

type Fulfiller interface {
	Fulfill(ctx context.Context, order *models.Order, event *models.Event) ([]models.TicketArtifact, error)
}

type TicketReader interface {
	GetTicketsByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error)
}

type ReceiptVerifier interface {
	Verify(ctx context.Context, imageRef string, expected verification.Expectation) verification.Result
}

type AutoApprovalScheduler interface {
	Schedule(ctx context.Context, orderNumber string, dueAt time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload models.OrderStatusEvent)
}

type CardCapture interface {
	ConfirmCapture(ctx context.Context, paymentIntentID string, amount float64) error
}

type OrderNumberGenerator interface {
	Next() string
}

const (
	verifiedByPipeline     = "system:auto-verification"
	verifiedByAutoApproval = "system:auto-approval"
	verifiedByCard         = "system:card-capture"

	defaultReviewQueueLimit = 50
	maxReviewQueueLimit     = 200

	// fulfillmentClaimLease is how long a claim survives a holder that never finished.
	fulfillmentClaimLease = 15 * time.Minute
)

type Deps struct {
	Store          Store
	Tickets        TicketReader
	Verifier       ReceiptVerifier
	Fulfiller      Fulfiller
	Scheduler      AutoApprovalScheduler
	Publisher      Publisher
	Card           CardCapture
	OrderNumbers   OrderNumberGenerator
	Topics         config.TopicConfig
	PipelineBudget time.Duration
	Logger         *logger.Logger
	Now            func() time.Time
}

type OrderService struct {
	store     Store
	tickets   TicketReader
	verifier  ReceiptVerifier
	fulfiller Fulfiller
	scheduler AutoApprovalScheduler
	publisher Publisher
	card      CardCapture
	numbers   OrderNumberGenerator
	topics    config.TopicConfig
	budget    time.Duration
	logger    *logger.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func NewOrderService(d Deps) *OrderService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PipelineBudget <= 0 {
		d.PipelineBudget = 2 * time.Minute
	}
	return &OrderService{
		store:     d.Store,
		tickets:   d.Tickets,
		verifier:  d.Verifier,
		fulfiller: d.Fulfiller,
		scheduler: d.Scheduler,
		publisher: d.Publisher,
		card:      d.Card,
		numbers:   d.OrderNumbers,
		topics:    d.Topics,
		budget:    d.PipelineBudget,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// SetScheduler replaces the grace-period scheduler. Backends that call back into
// the service are built after it.
func (s *OrderService) SetScheduler(scheduler AutoApprovalScheduler) {
	s.scheduler = scheduler
}

// ---------------- ORDERS ----------------

type LineRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

type CreateOrderRequest struct {
	UserID             string               `json:"-"`
	EventID            string               `json:"event_id"`
	CustomerEmail      string               `json:"customer_email"`
	CustomerPhone      string               `json:"customer_phone"`
	PaymentMethod      models.PaymentMethod `json:"payment_method"`
	Tickets            []LineRequest        `json:"tickets"`
	PaymentReference   string               `json:"payment_reference"`
	ExpectedRecipient  string               `json:"expected_recipient"`
	TransferScreenshot string               `json:"transfer_screenshot"`
	PaymentIntentID    string               `json:"payment_intent_id"`
}

func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	initial, err := req.PaymentMethod.InitialStatus()
	if err != nil {
		return nil, NewInputError(fmt.Sprintf("Unsupported payment method %q", req.PaymentMethod))
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		return nil, NewInputError("customer_email is required")
	}
	if len(req.Tickets) == 0 {
		return nil, NewInputError("At least one ticket line is required")
	}
	if req.PaymentMethod.RequiresScreenshot() && strings.TrimSpace(req.TransferScreenshot) == "" {
		return nil, NewInputError("transfer_screenshot is required for this payment method")
	}
	if req.PaymentMethod == models.MethodCard {
		if s.card == nil {
			return nil, NewInputError("Card payments are not available")
		}
		if req.PaymentIntentID == "" {
			return nil, NewInputError("payment_intent_id is required for card payments")
		}
	}

	event, err := s.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, models.ErrEventNotFound) {
		return nil, NewInputError(fmt.Sprintf("Event %s not found", req.EventID))
	}
	if err != nil {
		return nil, NewInternalError("load event", err)
	}

	lines, total, err := priceLines(event, req.Tickets)
	if err != nil {
		return nil, err
	}

	reference := strings.ToUpper(strings.TrimSpace(req.PaymentReference))
	if reference == "" {
		reference = utils.GeneratePaymentReference()
	} else if !receipt.ValidReference(reference) {
		return nil, NewInputError("payment_reference must be 2-5 letters followed by at least 4 digits, like TCK12345")
	}

	if req.PaymentMethod == models.MethodCard {
		if err := s.card.ConfirmCapture(ctx, req.PaymentIntentID, total); err != nil {
			s.logger.Warn("STRIPE", fmt.Sprintf("Capture not confirmed for %s: %v", req.PaymentIntentID, err))
			return nil, WrapInputError("Card payment could not be confirmed", err)
		}
	}

	now := s.now()
	order := &models.Order{
		OrderNumber:        s.numbers.Next(),
		UserID:             req.UserID,
		EventID:            event.ID,
		CustomerEmail:      strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:      strings.TrimSpace(req.CustomerPhone),
		PaymentMethod:      req.PaymentMethod,
		PaymentStatus:      initial,
		TotalAmount:        total,
		PaymentReference:   reference,
		ExpectedRecipient:  strings.TrimSpace(req.ExpectedRecipient),
		TransferScreenshot: strings.TrimSpace(req.TransferScreenshot),
		PaymentIntentID:    req.PaymentIntentID,
		ReviewPriority:     models.ReviewPriorityNormal,
		Tickets:            lines,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientInventory):
			return nil, NewInputError("Not enough tickets left for this ticket type")
		case errors.Is(err, models.ErrUnknownTicketType):
			return nil, NewInputError("Unknown ticket type")
		case errors.Is(err, models.ErrPaymentIntentUsed):
			return nil, NewConflictError("This card payment is already attached to an order", err.Error(), err)
		}
		return nil, NewInternalError("create order", err)
	}

	s.logger.LogOrder("CREATE", order.OrderNumber, fmt.Sprintf("%s order for %d tickets, total %.2f", order.PaymentMethod, order.TicketCount(), order.TotalAmount))
	s.publish(ctx, s.topics.OrderCreated, order, "", "Order created")

	switch {
	case order.PaymentMethod.RequiresScreenshot():
		s.runInBackground(order.OrderNumber, s.ProcessPaymentVerification)
	case order.PaymentMethod == models.MethodCard:
		if err := s.completeAutomatically(ctx, order, TriggerCard, "Card payment captured.", verifiedByCard); err != nil {
			return nil, NewInternalError("complete card order", err)
		}
		if current, err := s.store.GetOrder(ctx, order.OrderNumber); err == nil {
			order = current
		}
	}

	return order, nil
}

func priceLines(event *models.Event, requested []LineRequest) ([]models.OrderLine, float64, error) {
	byID := make(map[string]models.TicketType, len(event.TicketTypes))
	for _, tt := range event.TicketTypes {
		byID[tt.ID] = tt
	}

	lines := make([]models.OrderLine, 0, len(requested))
	total := decimal.Zero
	for _, r := range requested {
		if r.Quantity <= 0 {
			return nil, 0, NewInputError("Ticket quantity must be greater than zero")
		}
		tt, ok := byID[r.TicketTypeID]
		if !ok {
			return nil, 0, NewInputError(fmt.Sprintf("Unknown ticket type %s", r.TicketTypeID))
		}
		lines = append(lines, models.OrderLine{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Quantity:     r.Quantity,
			Price:        tt.Price,
		})
		total = total.Add(decimal.NewFromFloat(tt.Price).Mul(decimal.NewFromInt(int64(r.Quantity))))
	}
	return lines, total.Round(2).InexactFloat64(), nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderNumber)
	if errors.Is(err, models.ErrOrderNotFound) {
		return nil, NewNotFoundError("Order not found", err)
	}
	if err != nil {
		return nil, NewInternalError("load order", err)
	}
	return order, nil
}

func (s *OrderService) GetTicketsByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error) {
	if _, err := s.GetOrder(ctx, orderNumber); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.GetTicketsByOrder(ctx, orderNumber)
	if err != nil {
		return nil, NewInternalError("load tickets", err)
	}
	return tickets, nil
}

func (s *OrderService) ListReviewQueue(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultReviewQueueLimit
	}
	if limit > maxReviewQueueLimit {
		limit = maxReviewQueueLimit
	}
	orders, err := s.store.ListReviewQueue(ctx, limit)
	if err != nil {
		return nil, NewInternalError("list review queue", err)
	}
	return orders, nil
}

// AttachScreenshot records the proof of payment relayed from WhatsApp and starts verification.
func (s *OrderService) AttachScreenshot(ctx context.Context, orderNumber, imageRef string) error {
	imageRef = strings.TrimSpace(imageRef)
	if imageRef == "" {
		return NewInputError("screenshot_url is required")
	}

	err := s.store.AttachScreenshot(ctx, orderNumber, imageRef)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		return NewNotFoundError("Order not found", err)
	case errors.Is(err, models.ErrStatusChanged):
		return NewConflictError("Order is not awaiting a WhatsApp screenshot", fmt.Sprintf("attach screenshot to %s", orderNumber), err)
	case err != nil:
		return NewInternalError("attach screenshot", err)
	}

	s.logger.LogOrder("SCREENSHOT", orderNumber, "WhatsApp screenshot attached")
	s.runInBackground(orderNumber, s.ProcessPaymentVerification)
	return nil
}

// Wait blocks until every background pipeline started so far has returned.
func (s *OrderService) Wait() {
	s.wg.Wait()
}

func (s *OrderService) runInBackground(orderNumber string, fn func(ctx context.Context, orderNumber string) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.budget)
		defer cancel()
		if err := fn(ctx, orderNumber); err != nil {
			s.logger.Error("VERIFY", fmt.Sprintf("Background verification for %s failed: %v", orderNumber, err))
		}
	}()
}

// ---------------- TRANSITIONS ----------------

// apply runs a conditional transition and, when it wins, records and publishes it.
// models.ErrStatusChanged is returned untouched so callers can treat it as a lost race.
func (s *OrderService) apply(ctx context.Context, order *models.Order, tr models.StatusTransition, trigger Trigger) error {
	if err := CheckTransition(tr.From, tr.To, trigger); err != nil {
		return err
	}
	tr.OrderNumber = order.OrderNumber
	tr.At = s.now()
	tr.Note = s.stampNote(tr.Note)

	if err := s.store.TransitionStatus(ctx, tr); err != nil {
		return err
	}
	s.recordTransition(ctx, order, tr, trigger)
	return nil
}

func (s *OrderService) recordTransition(ctx context.Context, order *models.Order, tr models.StatusTransition, trigger Trigger) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	s.logger.LogTransition(order.OrderNumber, string(tr.From), string(tr.To), string(trigger))

	updated := *order
	updated.PaymentStatus = tr.To
	updated.AutoApprovalAt = tr.AutoApprovalAt
	s.publish(ctx, s.topics.OrderStatusChanged, &updated, tr.From, tr.Note)
}

func (s *OrderService) raceLost(orderNumber string, trigger Trigger, observed models.PaymentStatus) {
	metrics.AutoApprovalRaceLossesTotal.Inc()
	if observed == "" {
		s.logger.Info("RACE", fmt.Sprintf("%s: %s lost to a concurrent update, nothing to do", orderNumber, trigger))
		return
	}
	s.logger.Info("RACE", fmt.Sprintf("%s: %s found status %s, nothing to do", orderNumber, trigger, observed))
}

func (s *OrderService) stampNote(note string) string {
	if note == "" {
		return ""
	}
	return fmt.Sprintf("[%s] %s\n", s.now().UTC().Format(time.RFC3339), note)
}

func (s *OrderService) publish(ctx context.Context, topic string, order *models.Order, previous models.PaymentStatus, message string) {
	if s.publisher == nil {
		return
	}
	event := models.OrderStatusEvent{
		OrderNumber:    order.OrderNumber,
		EventID:        order.EventID,
		PreviousStatus: previous,
		Status:         order.PaymentStatus,
		Message:        strings.TrimSpace(message),
		Timestamp:      s.now(),
	}
	if !order.AutoApprovalAt.IsZero() {
		at := order.AutoApprovalAt
		event.AutoApprovalAt = &at
	}
	s.publisher.Publish(ctx, topic, event)
}
