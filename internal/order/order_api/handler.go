package order_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/models"
	"ms-payment-verification/internal/order"
	"ms-payment-verification/internal/sse"
	"ms-payment-verification/internal/utils"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (*models.Order, error)
	VerifyOrder(ctx context.Context, req order.VerifyRequest) (*models.Order, error)
	ListReviewQueue(ctx context.Context, limit int) ([]models.Order, error)
}

type Handler struct {
	OrderService OrderService
	Emitter      *sse.StatusEmitter
	Logger       *logger.Logger
	AdminRole    string
}

func NewHandler(svc OrderService, emitter *sse.StatusEmitter, log *logger.Logger, adminRole string) *Handler {
	return &Handler{
		OrderService: svc,
		Emitter:      emitter,
		Logger:       log,
		AdminRole:    adminRole,
	}
}

// Routes mounts the customer and admin endpoints behind authn.
func (h *Handler) Routes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/api/order", h.CreateOrder)
		r.Get("/api/order/{orderNumber}", h.GetOrder)
		r.Get("/api/order/{orderNumber}/events", h.OrderEvents)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(h.AdminRole))
			r.Post("/orders/{orderNumber}/verify", h.VerifyOrder)
			r.Get("/orders/review-queue", h.ReviewQueue)
			r.Get("/events/{eventId}/stream", h.EventStream)
		})
	})
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateOrder: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req.UserID = auth.UserID(r.Context())

	created, err := h.OrderService.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, "CreateOrder", err)
		return
	}

	status := http.StatusAccepted
	if created.PaymentMethod == models.MethodCard {
		status = http.StatusCreated
	}
	if err := utils.WriteJSON(w, status, created); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: %s accepted as %s", created.OrderNumber, created.PaymentStatus))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}
	if err := utils.WriteJSON(w, http.StatusOK, o); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: failed to encode response: %v", err))
	}
}

// accessibleOrder loads the order from the URL and hides it from anyone but its owner or an admin.
func (h *Handler) accessibleOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderNumber := chi.URLParam(r, "orderNumber")

	o, err := h.OrderService.GetOrder(r.Context(), orderNumber)
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return nil, false
	}
	if !auth.CanAccess(r.Context(), o.UserID, h.AdminRole) {
		h.Logger.LogSecurity("ORDER_ACCESS", fmt.Sprintf("%s denied access to %s", auth.UserID(r.Context()), orderNumber))
		http.Error(w, "Order not found", http.StatusNotFound)
		return nil, false
	}
	return o, true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := order.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	http.Error(w, order.PublicMessage(err), status)
}
