package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/order"
	qr "ms-payment-verification/internal/tickets/qr_genrator"
)

type fakeOrders struct {
	orders  map[string]*models.Order
	tickets map[string][]models.Ticket
}

func (f *fakeOrders) GetOrder(_ context.Context, orderNumber string) (*models.Order, error) {
	if o, ok := f.orders[orderNumber]; ok {
		return o, nil
	}
	return nil, order.NewNotFoundError("Order not found", models.ErrOrderNotFound)
}

func (f *fakeOrders) GetTicketsByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error) {
	if _, err := f.GetOrder(ctx, orderNumber); err != nil {
		return nil, err
	}
	return append([]models.Ticket{}, f.tickets[orderNumber]...), nil
}

func (f *fakeOrders) GetTicketByID(_ context.Context, ticketID string) (*models.Ticket, error) {
	for _, list := range f.tickets {
		for i := range list {
			if list[i].TicketID == ticketID {
				return &list[i], nil
			}
		}
	}
	return nil, models.ErrTicketNotFound
}

type staticVerifier map[string]*auth.Claims

func (v staticVerifier) Verify(_ context.Context, rawToken string) (*auth.Claims, error) {
	if c, ok := v[rawToken]; ok {
		return c, nil
	}
	return nil, errors.New("unknown token")
}

const qrSecret = "test-qr-secret"

func setup(t *testing.T) (http.Handler, *fakeOrders) {
	t.Helper()
	issued := time.Now().UTC()
	store := &fakeOrders{
		orders: map[string]*models.Order{
			"ORD-1": {OrderNumber: "ORD-1", UserID: "user-alice", EventID: "evt-1", PaymentStatus: models.StatusCompleted},
			"ORD-2": {OrderNumber: "ORD-2", UserID: "user-alice", EventID: "evt-1", PaymentStatus: models.StatusPendingQuickReview},
		},
		tickets: map[string][]models.Ticket{
			"ORD-1": {{TicketID: "tk-1", OrderNumber: "ORD-1", EventID: "evt-1", TicketTypeID: "tt-vip", IssuedAt: issued}},
			"ORD-2": {{TicketID: "tk-2", OrderNumber: "ORD-2", EventID: "evt-1", TicketTypeID: "tt-vip", IssuedAt: issued}},
		},
	}

	h := NewHandler(store, store, qr.NewQRGenerator(qrSecret), logger.NewConsoleLogger(io.Discard), "admin", "scanner")
	r := chi.NewRouter()
	h.Routes(r, auth.Middleware(staticVerifier{
		"alice":   {Subject: "user-alice"},
		"bob":     {Subject: "user-bob"},
		"scanner": {Subject: "gate-1", Roles: []string{"scanner"}},
	}))
	return r, store
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func encode(t *testing.T, p models.QRPayload) string {
	t.Helper()
	token, err := qr.NewQRGenerator(qrSecret).Encrypt(p)
	require.NoError(t, err)
	return token
}

func TestListTickets(t *testing.T) {
	router, _ := setup(t)

	rec := do(router, http.MethodGet, "/api/order/ORD-1/tickets", "alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		OrderNumber string          `json:"order_number"`
		Tickets     []models.Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ORD-1", body.OrderNumber)
	require.Len(t, body.Tickets, 1)
	assert.Equal(t, "tk-1", body.Tickets[0].TicketID)

	rec = do(router, http.MethodGet, "/api/order/ORD-1/tickets", "bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/api/order/ORD-404/tickets", "alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyTicket(t *testing.T) {
	router, _ := setup(t)

	tests := []struct {
		name      string
		qr        string
		wantValid bool
		reason    string
	}{
		{
			name:      "issued ticket of completed order",
			qr:        encode(t, models.QRPayload{TicketID: "tk-1", OrderNumber: "ORD-1", EventID: "evt-1"}),
			wantValid: true,
		},
		{
			name:   "order still under review",
			qr:     encode(t, models.QRPayload{TicketID: "tk-2", OrderNumber: "ORD-2", EventID: "evt-1"}),
			reason: "order is not completed",
		},
		{
			name:   "forged order number",
			qr:     encode(t, models.QRPayload{TicketID: "tk-1", OrderNumber: "ORD-2", EventID: "evt-1"}),
			reason: "ticket code does not match issued ticket",
		},
		{
			name:   "unknown ticket",
			qr:     encode(t, models.QRPayload{TicketID: "tk-9", OrderNumber: "ORD-1", EventID: "evt-1"}),
			reason: "ticket not issued",
		},
		{
			name:   "garbage code",
			qr:     "bm90LWEtdGlja2V0",
			reason: "unreadable ticket code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/tickets/verify", "scanner", `{"encrypted_qr":"`+tt.qr+`"}`)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp VerifyTicketResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantValid, resp.Valid)
			assert.Equal(t, tt.reason, resp.Reason)
		})
	}
}

func TestVerifyTicket_RequiresScannerRole(t *testing.T) {
	router, _ := setup(t)

	rec := do(router, http.MethodPost, "/api/tickets/verify", "alice", `{"encrypted_qr":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPost, "/api/tickets/verify", "scanner", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
