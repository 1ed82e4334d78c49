package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotledger/lotledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/consume", h.handleConsume)
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/reservations", h.handleReserve)
	r.Delete("/reservations", h.handleRelease)
	r.Get("/{productID}", h.handleGetStock)
	r.Get("/{productID}/batches", h.handleListBatches)
	r.Get("/{productID}/audit", h.handleListAudit)
}

type consumeRequest struct {
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	Reason          string  `json:"reason"`
	ReferenceID     string  `json:"reference_id,omitempty"`
	ReferenceNumber string  `json:"reference_number,omitempty"`
	PerformedBy     int64   `json:"performed_by"`
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ConsumeStock(r.Context(), ConsumeInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Reason:          ConsumptionReason(req.Reason),
		ReferenceID:     req.ReferenceID,
		ReferenceNumber: req.ReferenceNumber,
		ActorID:         req.PerformedBy,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("consume stock rejected", slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type adjustmentRequest struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	QuantityChange float64         `json:"quantity_change" validate:"required"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Kind           string          `json:"kind"`
	Reason         string          `json:"reason" validate:"required"`
	BatchNumber    string          `json:"batch_number,omitempty"`
	PerformedBy    int64           `json:"performed_by"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.AdjustStock(r.Context(), AdjustmentInput{
		ProductID:      req.ProductID,
		QuantityChange: req.QuantityChange,
		UnitCost:       req.UnitCost,
		Kind:           AdjustmentKind(req.Kind),
		Reason:         req.Reason,
		BatchNumber:    req.BatchNumber,
		ActorID:        req.PerformedBy,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type reservationRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	PerformedBy int64   `json:"performed_by"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	led, err := h.service.ReserveStock(r.Context(), req.ProductID, req.Quantity, req.PerformedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse(led))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	led, err := h.service.ReleaseReservation(r.Context(), req.ProductID, req.Quantity, req.PerformedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse(led))
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	led, err := h.service.GetStock(r.Context(), productID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledgerResponse(led))
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	batches, err := h.service.ListBatches(r.Context(), productID, includeInactive)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "batches": out})
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseID(w, r, "productID")
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	entries, err := h.service.ListAudit(r.Context(), AuditFilter{ProductID: productID, Limit: limit, Offset: offset})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id":               e.ID,
			"product_id":       e.ProductID,
			"batch_id":         e.BatchID,
			"adjustment_type":  e.Type,
			"quantity_change":  e.QuantityChange,
			"quantity_before":  e.QuantityBefore,
			"quantity_after":   e.QuantityAfter,
			"reason":           e.Reason,
			"reference_id":     e.ReferenceID,
			"reference_number": e.ReferenceNumber,
			"performed_by":     e.PerformedBy,
			"occurred_at":      e.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "entries": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrReservationExceedsStock):
		httpx.Problem(w, http.StatusConflict, "Reservation Exceeds Stock", err.Error())
	case errors.Is(err, ErrLedgerNotFound), errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func ledgerResponse(led Ledger) map[string]any {
	return map[string]any{
		"product_id":         led.ProductID,
		"quantity_on_hand":   led.QuantityOnHand,
		"reserved_quantity":  led.ReservedQuantity,
		"available_quantity": led.Available(),
		"updated_at":         led.UpdatedAt,
	}
}

func batchResponse(b Batch) map[string]any {
	out := map[string]any{
		"id":                 b.ID,
		"product_id":         b.ProductID,
		"batch_number":       b.BatchNumber,
		"quantity":           b.Quantity,
		"available_quantity": b.AvailableQuantity,
		"unit_cost":          b.UnitCost,
		"received_at":        b.ReceivedAt,
		"is_active":          b.IsActive,
	}
	if b.PurchaseOrderID != 0 {
		out["purchase_order_id"] = b.PurchaseOrderID
	}
	if b.GRNID != 0 {
		out["grn_id"] = b.GRNID
	}
	if b.HasExpiry() {
		out["expiry_date"] = b.ExpiryDate
	}
	return out
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "path id must be a positive integer")
		return 0, false
	}
	return id, true
}
