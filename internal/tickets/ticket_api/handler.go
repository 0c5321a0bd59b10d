package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/order"
	qr "ms-payment-verification/internal/tickets/qr_genrator"
	"ms-payment-verification/internal/utils"
)

type OrderReader interface {
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	GetTicketsByOrder(ctx context.Context, orderNumber string) ([]models.Ticket, error)
}

type TicketLookup interface {
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
}

type QRDecoder interface {
	Decrypt(token string) (*models.QRPayload, error)
}

type Handler struct {
	Orders      OrderReader
	Tickets     TicketLookup
	QR          QRDecoder
	Logger      *logger.Logger
	AdminRole   string
	ScannerRole string
}

func NewHandler(orders OrderReader, tickets TicketLookup, decoder QRDecoder, log *logger.Logger, adminRole, scannerRole string) *Handler {
	return &Handler{
		Orders:      orders,
		Tickets:     tickets,
		QR:          decoder,
		Logger:      log,
		AdminRole:   adminRole,
		ScannerRole: scannerRole,
	}
}

func (h *Handler) Routes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/api/order/{orderNumber}/tickets", h.ListTickets)
		r.With(auth.RequireRole(h.ScannerRole)).Post("/api/tickets/verify", h.VerifyTicket)
	})
}

// ListTickets returns the tickets issued for an order the caller owns.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	o, err := h.Orders.GetOrder(r.Context(), orderNumber)
	if err != nil {
		http.Error(w, order.PublicMessage(err), order.StatusCode(err))
		return
	}
	if !auth.CanAccess(r.Context(), o.UserID, h.AdminRole) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	tickets, err := h.Orders.GetTicketsByOrder(r.Context(), orderNumber)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTickets %s: %v", orderNumber, err))
		http.Error(w, order.PublicMessage(err), order.StatusCode(err))
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"order_number":   orderNumber,
		"payment_status": o.PaymentStatus,
		"tickets":        tickets,
	})
}

type VerifyTicketResponse struct {
	Valid       bool           `json:"valid"`
	Reason      string         `json:"reason,omitempty"`
	Ticket      *models.Ticket `json:"ticket,omitempty"`
	OrderStatus string         `json:"order_status,omitempty"`
}

// VerifyTicket decrypts a scanned ticket code and confirms it matches an issued ticket
// of a completed order. Expected body: {"encrypted_qr": "..."}
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if requestBody.EncryptedQR == "" {
		http.Error(w, "encrypted_qr is required", http.StatusBadRequest)
		return
	}

	payload, err := h.QR.Decrypt(requestBody.EncryptedQR)
	if err != nil {
		h.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("scanner %s: %v", auth.UserID(r.Context()), err))
		utils.WriteJSON(w, http.StatusOK, VerifyTicketResponse{Valid: false, Reason: "unreadable ticket code"})
		return
	}

	ticket, err := h.Tickets.GetTicketByID(r.Context(), payload.TicketID)
	if errors.Is(err, models.ErrTicketNotFound) {
		utils.WriteJSON(w, http.StatusOK, VerifyTicketResponse{Valid: false, Reason: "ticket not issued"})
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("VerifyTicket %s: %v", payload.TicketID, err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if ticket.OrderNumber != payload.OrderNumber || ticket.EventID != payload.EventID {
		h.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("ticket %s presented with order %s", ticket.TicketID, payload.OrderNumber))
		utils.WriteJSON(w, http.StatusOK, VerifyTicketResponse{Valid: false, Reason: "ticket code does not match issued ticket"})
		return
	}

	o, err := h.Orders.GetOrder(r.Context(), ticket.OrderNumber)
	if err != nil {
		http.Error(w, order.PublicMessage(err), order.StatusCode(err))
		return
	}
	resp := VerifyTicketResponse{Valid: o.PaymentStatus == models.StatusCompleted, Ticket: ticket, OrderStatus: string(o.PaymentStatus)}
	if !resp.Valid {
		resp.Reason = "order is not completed"
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

var _ QRDecoder = (*qr.QRGenerator)(nil)
