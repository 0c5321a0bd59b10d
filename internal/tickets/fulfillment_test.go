package tickets_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/email"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/metrics"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/tickets"
	qr "ms-payment-verification/internal/tickets/qr_genrator"
)

// MockTicketStore is a mock implementation of the tickets.Store interface
type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) SaveTickets(ctx context.Context, issued []models.Ticket) error {
	args := m.Called(ctx, issued)
	return args.Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, d email.Delivery) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

type MockWhatsApp struct {
	mock.Mock
}

func (m *MockWhatsApp) NotifyWhatsApp(ctx context.Context, n models.WhatsAppNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// fakeRenderer stands in for the PDF template so tests need no font file
type fakeRenderer struct {
	failOn int
	calls  int
}

func (r *fakeRenderer) Generate(t models.Ticket, ev *models.Event, qrCode []byte) ([]byte, error) {
	r.calls++
	if r.failOn > 0 && r.calls == r.failOn {
		return nil, errors.New("font missing")
	}
	return []byte(fmt.Sprintf("%%PDF %s %s %d", t.TicketID, ev.Name, len(qrCode))), nil
}

func testOrder() *models.Order {
	return &models.Order{
		OrderNumber:   "ORD-42",
		EventID:       "evt-1",
		CustomerEmail: "ama@example.com",
		CustomerPhone: "+94771234567",
		PaymentMethod: models.MethodMobileMoneyManual,
		Tickets: []models.OrderLine{
			{TicketTypeID: "tt-vip", Name: "VIP", Quantity: 2, Price: 100},
			{TicketTypeID: "tt-regular", Name: "Regular", Quantity: 1, Price: 50},
		},
	}
}

func testEvent() *models.Event {
	return &models.Event{ID: "evt-1", Name: "Afrobeats Night", Venue: "Colombo", StartDate: time.Now().Add(48 * time.Hour)}
}

func TestFulfill_IssuesDeliversAndConfirms(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	whatsapp := new(MockWhatsApp)
	gen := qr.NewQRGenerator("secret")

	store.On("SaveTickets", mock.Anything, mock.MatchedBy(func(ts []models.Ticket) bool { return len(ts) == 3 })).Return(nil)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(d email.Delivery) bool {
		return d.To == "ama@example.com" && len(d.Attachments) == 3 && strings.Contains(d.Subject, "ORD-42")
	})).Return(nil)
	whatsapp.On("NotifyWhatsApp", mock.Anything, mock.MatchedBy(func(n models.WhatsAppNotification) bool {
		return n.Phone == "+94771234567" && len(n.TicketIDs) == 3
	})).Return(nil)

	f := tickets.NewFulfiller(gen, &fakeRenderer{}, store, mailer, whatsapp, logger.NewConsoleLogger(io.Discard))
	artifacts, err := f.Fulfill(context.Background(), testOrder(), testEvent())
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	seen := map[string]bool{}
	vip := 0
	for _, a := range artifacts {
		assert.False(t, seen[a.Ticket.TicketID], "ticket ids are unique")
		seen[a.Ticket.TicketID] = true
		assert.True(t, strings.HasPrefix(a.Ticket.FileName, "ticket-ORD-42-"+a.Ticket.TicketID+"-"))
		assert.True(t, strings.HasSuffix(a.Ticket.FileName, ".pdf"))
		assert.NotEmpty(t, a.Ticket.QRCode)
		assert.NotEmpty(t, a.PDF)
		if a.Ticket.TicketTypeID == "tt-vip" {
			vip++
			assert.Equal(t, 100.0, a.Ticket.PriceAtPurchase)
		}
	}
	assert.Equal(t, 2, vip)

	store.AssertExpectations(t)
	mailer.AssertExpectations(t)
	whatsapp.AssertExpectations(t)
}

func TestFulfill_GenerationFailureStopsBeforeDelivery(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	before := testutil.ToFloat64(metrics.FulfillmentFailuresTotal.WithLabelValues("generation"))

	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{failOn: 2}, store, mailer, nil, logger.NewConsoleLogger(io.Discard))
	_, err := f.Fulfill(context.Background(), testOrder(), testEvent())

	var fe *tickets.FulfillmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, tickets.StageGeneration, fe.Stage)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FulfillmentFailuresTotal.WithLabelValues("generation")))
	store.AssertNotCalled(t, "SaveTickets", mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFulfill_PersistFailureIsGenerationStage(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	store.On("SaveTickets", mock.Anything, mock.Anything).Return(errors.New("db down"))

	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{}, store, mailer, nil, logger.NewConsoleLogger(io.Discard))
	_, err := f.Fulfill(context.Background(), testOrder(), testEvent())

	var fe *tickets.FulfillmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, tickets.StageGeneration, fe.Stage)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestFulfill_DeliveryFailureKeepsArtifacts(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	whatsapp := new(MockWhatsApp)
	smtpDown := errors.New("smtp unavailable")
	store.On("SaveTickets", mock.Anything, mock.Anything).Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(smtpDown)
	before := testutil.ToFloat64(metrics.FulfillmentFailuresTotal.WithLabelValues("delivery"))

	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{}, store, mailer, whatsapp, logger.NewConsoleLogger(io.Discard))
	artifacts, err := f.Fulfill(context.Background(), testOrder(), testEvent())

	var fe *tickets.FulfillmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, tickets.StageDelivery, fe.Stage)
	assert.ErrorIs(t, err, smtpDown)
	assert.Len(t, artifacts, 3)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FulfillmentFailuresTotal.WithLabelValues("delivery")))
	whatsapp.AssertNotCalled(t, "NotifyWhatsApp", mock.Anything, mock.Anything)
}

func TestFulfill_WhatsAppFailureIsBestEffort(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	whatsapp := new(MockWhatsApp)
	store.On("SaveTickets", mock.Anything, mock.Anything).Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	whatsapp.On("NotifyWhatsApp", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{}, store, mailer, whatsapp, logger.NewConsoleLogger(io.Discard))
	artifacts, err := f.Fulfill(context.Background(), testOrder(), testEvent())

	require.NoError(t, err)
	assert.Len(t, artifacts, 3)
}

func TestFulfill_NoPhoneSkipsWhatsApp(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	whatsapp := new(MockWhatsApp)
	store.On("SaveTickets", mock.Anything, mock.Anything).Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	o := testOrder()
	o.CustomerPhone = ""
	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{}, store, mailer, whatsapp, logger.NewConsoleLogger(io.Discard))
	_, err := f.Fulfill(context.Background(), o, testEvent())

	require.NoError(t, err)
	whatsapp.AssertNotCalled(t, "NotifyWhatsApp", mock.Anything, mock.Anything)
}

func TestFulfill_EachCallIssuesNewTickets(t *testing.T) {
	store := new(MockTicketStore)
	mailer := new(MockMailer)
	store.On("SaveTickets", mock.Anything, mock.Anything).Return(nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	f := tickets.NewFulfiller(qr.NewQRGenerator("secret"), &fakeRenderer{}, store, mailer, nil, logger.NewConsoleLogger(io.Discard))
	first, err := f.Fulfill(context.Background(), testOrder(), testEvent())
	require.NoError(t, err)
	second, err := f.Fulfill(context.Background(), testOrder(), testEvent())
	require.NoError(t, err)

	assert.NotEqual(t, first[0].Ticket.TicketID, second[0].Ticket.TicketID)
}
