package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotledger/lotledger/internal/ledger"
	"github.com/lotledger/lotledger/internal/platform/httpx"
	"github.com/lotledger/lotledger/internal/shared"
)

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Post("/", h.handleCreatePO)
		r.Get("/", h.handleListPOs)
		r.Get("/{id}", h.handleGetPO)
		r.Post("/{id}/items", h.handleAddPOItem)
		r.Delete("/{id}/items/{itemID}", h.handleRemovePOItem)
		r.Post("/{id}/submit", h.handleSubmitPO)
		r.Post("/{id}/approve", h.handleApprovePO)
		r.Post("/{id}/receive", h.handleReceivePO)
		r.Post("/{id}/cancel", h.handleCancelPO)
	})
	r.Route("/grns", func(r chi.Router) {
		r.Post("/", h.handleCreateGRN)
		r.Get("/", h.handleListGRNs)
		r.Get("/{id}", h.handleGetGRN)
		r.Post("/{id}/items", h.handleAddGRNItem)
		r.Post("/{id}/confirm", h.handleConfirmGRN)
		r.Post("/{id}/cancel", h.handleCancelGRN)
		r.Post("/{id}/void", h.handleVoidGRN)
	})
	r.Post("/supplier-returns", h.handleCreateReturn)
	r.Get("/supplier-returns/{id}", h.handleGetReturn)
}

type poItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createPORequest struct {
	Number      string          `json:"number,omitempty"`
	SupplierID  int64           `json:"supplier_id" validate:"required,gt=0"`
	Note        string          `json:"note,omitempty"`
	PerformedBy int64           `json:"performed_by"`
	Items       []poItemRequest `json:"items" validate:"dive"`
}

func (h *Handler) handleCreatePO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreatePOInput{Number: req.Number, SupplierID: req.SupplierID, Note: req.Note, ActorID: req.PerformedBy}
	for _, item := range req.Items {
		input.Items = append(input.Items, POItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, poResponse(po))
}

func (h *Handler) handleListPOs(w http.ResponseWriter, r *http.Request) {
	filters, page := listParams(r)
	pos, pagination, err := h.service.ListPurchaseOrders(r.Context(), filters, page)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(pos))
	for _, po := range pos {
		items = append(items, poResponse(po))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": paginationResponse(pagination)})
}

func (h *Handler) handleGetPO(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse(po))
}

func (h *Handler) handleAddPOItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		poItemRequest
		PerformedBy int64 `json:"performed_by"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req.poItemRequest); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddPOItem(r.Context(), id, POItemInput{ProductID: req.ProductID, Quantity: req.Quantity, UnitPrice: req.UnitPrice}, req.PerformedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         item.ID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"unit_price": item.UnitPrice,
	})
}

func (h *Handler) handleRemovePOItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := parseID(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.RemovePOItem(r.Context(), id, itemID, actorFrom(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmitPO(w http.ResponseWriter, r *http.Request) {
	h.transitionPO(w, r, h.service.SubmitPurchaseOrder)
}

func (h *Handler) handleApprovePO(w http.ResponseWriter, r *http.Request) {
	h.transitionPO(w, r, h.service.ApprovePurchaseOrder)
}

func (h *Handler) handleReceivePO(w http.ResponseWriter, r *http.Request) {
	h.transitionPO(w, r, h.service.ReceivePurchaseOrder)
}

func (h *Handler) handleCancelPO(w http.ResponseWriter, r *http.Request) {
	h.transitionPO(w, r, h.service.CancelPurchaseOrder)
}

func (h *Handler) transitionPO(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, poID int64, actorID int64) error) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(r.Context(), id, actorFrom(r)); err != nil {
		h.respondError(w, err)
		return
	}
	po, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, poResponse(po))
}

type grnItemRequest struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Quantity    float64         `json:"quantity" validate:"required,gt=0"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	BatchNumber string          `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
}

type createGRNRequest struct {
	Number      string           `json:"number,omitempty"`
	SupplierID  int64            `json:"supplier_id"`
	POID        int64            `json:"po_id,omitempty"`
	ReceivedAt  *time.Time       `json:"received_at,omitempty"`
	Note        string           `json:"note,omitempty"`
	PerformedBy int64            `json:"performed_by"`
	Items       []grnItemRequest `json:"items" validate:"dive"`
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateGRNInput{
		Number:         req.Number,
		SupplierID:     req.SupplierID,
		POID:           req.POID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Note:           req.Note,
		ActorID:        req.PerformedBy,
	}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	for _, item := range req.Items {
		in := GRNItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: item.UnitCost, BatchNumber: item.BatchNumber}
		if item.ExpiryDate != nil {
			in.ExpiryDate = *item.ExpiryDate
		}
		input.Items = append(input.Items, in)
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grnResponse(grn))
}

func (h *Handler) handleListGRNs(w http.ResponseWriter, r *http.Request) {
	filters, page := listParams(r)
	grns, pagination, err := h.service.ListGoodsReceipts(r.Context(), filters, page)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(grns))
	for _, grn := range grns {
		items = append(items, grnResponse(grn))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": paginationResponse(pagination)})
}

func (h *Handler) handleGetGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grnResponse(grn))
}

func (h *Handler) handleAddGRNItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		grnItemRequest
		PerformedBy int64 `json:"performed_by"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req.grnItemRequest); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := GRNItemInput{ProductID: req.ProductID, Quantity: req.Quantity, UnitCost: req.UnitCost, BatchNumber: req.BatchNumber}
	if req.ExpiryDate != nil {
		input.ExpiryDate = *req.ExpiryDate
	}
	item, err := h.service.AddGRNItem(r.Context(), id, input, req.PerformedBy)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         item.ID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"unit_cost":  item.UnitCost,
	})
}

func (h *Handler) handleConfirmGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.service.ConfirmGoodsReceipt(r.Context(), id, r.Header.Get("Idempotency-Key"), actorFrom(r))
	if err != nil {
		h.logger.Warn("grn confirmation rejected", slog.Int64("grn_id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleCancelGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.CancelGoodsReceipt(r.Context(), id, actorFrom(r)); err != nil {
		h.respondError(w, err)
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grnResponse(grn))
}

func (h *Handler) handleVoidGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason      string `json:"reason" validate:"required"`
		PerformedBy int64  `json:"performed_by"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.VoidGoodsReceipt(r.Context(), id, req.Reason, req.PerformedBy); err != nil {
		h.respondError(w, err)
		return
	}
	grn, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grnResponse(grn))
}

type returnItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	BatchID   int64           `json:"batch_id,omitempty"`
	Quantity  float64         `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reason    string          `json:"reason,omitempty"`
}

type createReturnRequest struct {
	Number      string              `json:"number,omitempty"`
	SupplierID  int64               `json:"supplier_id" validate:"required,gt=0"`
	GRNID       int64               `json:"grn_id,omitempty"`
	PerformedBy int64               `json:"performed_by"`
	Items       []returnItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req createReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := ReturnInput{Number: req.Number, SupplierID: req.SupplierID, GRNID: req.GRNID, ActorID: req.PerformedBy}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReturnItemInput{
			ProductID: item.ProductID,
			BatchID:   item.BatchID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			Reason:    item.Reason,
		})
	}
	ret, err := h.service.CreateSupplierReturn(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, returnResponse(ret))
}

func (h *Handler) handleGetReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	ret, err := h.service.GetSupplierReturn(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returnResponse(ret))
}

// respondError also maps the ledger sentinels: receipt confirmation and
// supplier returns compose stock effects, so their failures surface here.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrLedgerNotFound), errors.Is(err, ledger.ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func poResponse(po PurchaseOrder) map[string]any {
	items := make([]map[string]any, 0, len(po.Items))
	for _, item := range po.Items {
		items = append(items, map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
		})
	}
	out := map[string]any{
		"id":          po.ID,
		"number":      po.Number,
		"supplier_id": po.SupplierID,
		"status":      po.Status,
		"note":        po.Note,
		"total":       po.Total(),
		"created_at":  po.CreatedAt,
		"items":       items,
	}
	if po.ApprovedBy != 0 {
		out["approved_by"] = po.ApprovedBy
		out["approved_at"] = po.ApprovedAt
	}
	return out
}

func grnResponse(grn GoodsReceiveNote) map[string]any {
	items := make([]map[string]any, 0, len(grn.Items))
	for _, item := range grn.Items {
		line := map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_cost":  item.UnitCost,
		}
		if item.BatchNumber != "" {
			line["batch_number"] = item.BatchNumber
		}
		if !item.ExpiryDate.IsZero() {
			line["expiry_date"] = item.ExpiryDate
		}
		items = append(items, line)
	}
	out := map[string]any{
		"id":          grn.ID,
		"number":      grn.Number,
		"supplier_id": grn.SupplierID,
		"status":      grn.Status,
		"total":       grn.Total(),
		"note":        grn.Note,
		"created_at":  grn.CreatedAt,
		"items":       items,
	}
	if grn.POID != 0 {
		out["po_id"] = grn.POID
	}
	if !grn.ReceivedAt.IsZero() {
		out["received_at"] = grn.ReceivedAt
	}
	return out
}

func returnResponse(ret SupplierReturn) map[string]any {
	items := make([]map[string]any, 0, len(ret.Items))
	for _, item := range ret.Items {
		line := map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_cost":  item.UnitCost,
			"reason":     item.Reason,
		}
		if item.BatchID != 0 {
			line["batch_id"] = item.BatchID
		}
		items = append(items, line)
	}
	out := map[string]any{
		"id":           ret.ID,
		"number":       ret.Number,
		"supplier_id":  ret.SupplierID,
		"credit_total": ret.CreditTotal,
		"created_at":   ret.CreatedAt,
		"items":        items,
	}
	if ret.GRNID != 0 {
		out["grn_id"] = ret.GRNID
	}
	return out
}

func paginationResponse(p shared.Pagination) map[string]any {
	return map[string]any{
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total":       p.Total,
		"total_pages": p.TotalPages,
	}
}

func listParams(r *http.Request) (ListFilters, shared.Pagination) {
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filters := ListFilters{
		Status:     q.Get("status"),
		SupplierID: supplierID,
		Search:     q.Get("q"),
	}
	return filters, shared.NewPagination(page, perPage, 0)
}

func actorFrom(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return id
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "path id must be a positive integer")
		return 0, false
	}
	return id, true
}
