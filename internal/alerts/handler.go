package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lotledger/lotledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock alerts.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/expiring", h.handleExpiring)
	r.Get("/expired", h.handleExpired)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	var override *float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil || val < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid threshold", "threshold must be a non-negative number")
			return
		}
		override = &val
	}
	alerts, err := h.service.LowStock(r.Context(), override)
	if err != nil {
		h.logger.Error("low stock scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > maxExpiryWindowDays {
			httpx.Problem(w, http.StatusBadRequest, "Invalid days", "days must be between 1 and 365")
			return
		}
		days = val
	}
	alerts, err := h.service.ExpiringBatches(r.Context(), days)
	if err != nil {
		h.logger.Error("expiring batch scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleExpired(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.ExpiredBatches(r.Context())
	if err != nil {
		h.logger.Error("expired batch scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}
