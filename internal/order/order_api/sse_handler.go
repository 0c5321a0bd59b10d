package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-payment-verification/internal/models"
)

var heartbeatInterval = 15 * time.Second

// OrderEvents streams status changes for one order. The current status is sent first;
// the stream ends once the order reaches a terminal status.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// subscribe before reading the order so no transition slips between the two
	ctx := r.Context()
	events := h.Emitter.SubscribeToOrder(ctx, chi.URLParam(r, "orderNumber"))

	o, ok := h.accessibleOrder(w, r)
	if !ok {
		return
	}

	setupSSEHeaders(w)
	current := models.OrderStatusEvent{
		OrderNumber: o.OrderNumber,
		EventID:     o.EventID,
		Status:      o.PaymentStatus,
		Timestamp:   time.Now(),
	}
	if !o.AutoApprovalAt.IsZero() {
		at := o.AutoApprovalAt
		current.AutoApprovalAt = &at
	}
	if err := h.writeStatus(w, current); err != nil {
		return
	}
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to status stream for order: %s", o.OrderNumber))

	if o.PaymentStatus.IsTerminal() {
		return
	}
	h.stream(w, flusher, r, events, o.OrderNumber, true)
}

// EventStream streams every status change for one event to admins.
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		http.Error(w, "Event ID is required", http.StatusBadRequest)
		return
	}

	setupSSEHeaders(w)
	events := h.Emitter.SubscribeToEvent(r.Context(), eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventId\":%q}\n\n", eventID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Admin connected to status stream for event: %s", eventID))

	h.stream(w, flusher, r, events, eventID, false)
}

func (h *Handler) stream(w http.ResponseWriter, flusher http.Flusher, r *http.Request, events <-chan models.OrderStatusEvent, key string, untilTerminal bool) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for: %s", key))
				return
			}
			if err := h.writeStatus(w, evt); err != nil {
				return
			}
			flusher.Flush()
			if untilTerminal && evt.Status.IsTerminal() {
				h.Logger.Debug("SSE", fmt.Sprintf("Order %s reached %s, closing stream", key, evt.Status))
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from: %s", key))
			return
		}
	}
}

func (h *Handler) writeStatus(w http.ResponseWriter, evt models.OrderStatusEvent) error {
	jsonData, err := json.Marshal(evt)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize status event: %v", err))
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", jsonData)
	return err
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
