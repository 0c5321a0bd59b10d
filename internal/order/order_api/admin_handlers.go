package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/order"
	"ms-payment-verification/internal/utils"
)

const defaultReviewQueueLimit = 50

func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	var req order.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("VerifyOrder: failed to decode request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	req.OrderNumber = chi.URLParam(r, "orderNumber")
	req.AdminID = auth.UserID(r.Context())

	updated, err := h.OrderService.VerifyOrder(r.Context(), req)
	if err != nil {
		status := order.StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("API", fmt.Sprintf("VerifyOrder %s: %v", req.OrderNumber, err))
		} else {
			h.Logger.Warn("API", fmt.Sprintf("VerifyOrder %s: %v", req.OrderNumber, err))
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("Verification failed", order.PublicMessage(err)))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Order %s moved to %s by %s", updated.OrderNumber, updated.PaymentStatus, req.AdminID))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order "+string(updated.PaymentStatus), updated))
}

func (h *Handler) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := defaultReviewQueueLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	orders, err := h.OrderService.ListReviewQueue(r.Context(), limit)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReviewQueue: %v", err))
		utils.WriteJSON(w, order.StatusCode(err), utils.ErrorResponse("Failed to load review queue", order.PublicMessage(err)))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d orders awaiting review", len(orders)), orders))
}
