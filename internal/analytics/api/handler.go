package analytics_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"ms-payment-verification/internal/analytics"
	"ms-payment-verification/internal/auth"
	"ms-payment-verification/internal/logger"
	"ms-payment-verification/internal/utils"
)

const summaryCacheTTL = 30 * time.Second

type SummaryService interface {
	VerificationSummary(ctx context.Context, eventID string) (*analytics.VerificationSummary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service     SummaryService
	Logger      *logger.Logger
	RedisClient *redis.Client
	AdminRole   string
}

// NewHandler creates a new analytics handler. redisClient may be nil, which disables caching.
func NewHandler(service SummaryService, log *logger.Logger, redisClient *redis.Client, adminRole string) *Handler {
	return &Handler{
		Service:     service,
		Logger:      log,
		RedisClient: redisClient,
		AdminRole:   adminRole,
	}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/api/admin/analytics", func(r chi.Router) {
		r.Use(authn, auth.RequireRole(h.AdminRole))
		r.Get("/events/{eventId}/verification", h.GetVerificationSummary)
	})
}

func cacheKey(eventID string) string {
	return "analytics:verification:" + eventID
}

func (h *Handler) GetVerificationSummary(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	ctx := r.Context()

	if summary, ok := h.cached(ctx, eventID); ok {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Verification summary retrieved", summary))
		return
	}

	summary, err := h.Service.VerificationSummary(ctx, eventID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to build verification summary for %s: %v", eventID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to retrieve verification summary", "Internal server error"))
		return
	}
	h.store(ctx, eventID, summary)

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Verification summary retrieved", summary))
}

func (h *Handler) cached(ctx context.Context, eventID string) (*analytics.VerificationSummary, bool) {
	if h.RedisClient == nil {
		return nil, false
	}
	raw, err := h.RedisClient.Get(ctx, cacheKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		h.Logger.Warn("REDIS", fmt.Sprintf("Analytics cache read failed: %v", err))
		return nil, false
	}
	var summary analytics.VerificationSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Serving cached verification summary for %s", eventID))
	return &summary, true
}

func (h *Handler) store(ctx context.Context, eventID string, summary *analytics.VerificationSummary) {
	if h.RedisClient == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := h.RedisClient.Set(ctx, cacheKey(eventID), raw, summaryCacheTTL).Err(); err != nil {
		h.Logger.Warn("REDIS", fmt.Sprintf("Analytics cache write failed: %v", err))
	}
}
