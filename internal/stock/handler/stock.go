package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// StockHandler serves the stock mutation endpoints
type StockHandler struct {
	stock  *service.StockService
	logger *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(stock *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		stock:  stock,
		logger: log.WithComponent("stock_handler"),
	}
}

// DispenseRequest is the payload for dispensing stock
type DispenseRequest struct {
	DrugID   string `json:"drug_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	BatchID  string `json:"batch_id,omitempty" validate:"omitempty,uuid"`

	UnitPrice  string  `json:"unit_price,omitempty"`
	CustomerID *string `json:"customer_id,omitempty"`

	ReferenceType   *string `json:"reference_type,omitempty"`
	ReferenceID     *string `json:"reference_id,omitempty"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
}

// Dispense handles POST /dispense
func (h *StockHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req DispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.DispenseInput{
		DrugID:     req.DrugID,
		Quantity:   req.Quantity,
		BatchID:    req.BatchID,
		CustomerID: req.CustomerID,
		Reference: domain.Reference{
			Type:   req.ReferenceType,
			ID:     req.ReferenceID,
			Number: req.ReferenceNumber,
		},
		PerformedBy: performedBy(r),
	}

	if req.UnitPrice != "" {
		price, err := decimal.NewFromString(req.UnitPrice)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"unit_price": "must be a decimal number"}))
			return
		}
		in.UnitPrice = decimal.NewNullDecimal(price)
	}

	result, err := h.stock.Dispense(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// AdjustRequest is the payload for a manual stock adjustment
type AdjustRequest struct {
	Type     string  `json:"type" validate:"required,oneof=add subtract"`
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required,max=500"`
	Notes    *string `json:"notes,omitempty"`
}

// Adjust handles POST /batches/{id}/adjust
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.AdjustStock(r.Context(), service.AdjustInput{
		BatchID:     chi.URLParam(r, "id"),
		Type:        service.AdjustmentType(req.Type),
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		Notes:       req.Notes,
		PerformedBy: performedBy(r),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// ReturnRequest is the payload for returning stock to its supplier
type ReturnRequest struct {
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required,max=500"`
	Notes    *string `json:"notes,omitempty"`

	RefundType   *string `json:"refund_type,omitempty"`
	RefundID     *string `json:"refund_id,omitempty"`
	RefundNumber *string `json:"refund_number,omitempty"`
}

// Return handles POST /batches/{id}/return
func (h *StockHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.ReturnToSupplier(r.Context(), service.ReturnInput{
		BatchID:  chi.URLParam(r, "id"),
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Notes:    req.Notes,
		RefundRef: domain.Reference{
			Type:   req.RefundType,
			ID:     req.RefundID,
			Number: req.RefundNumber,
		},
		PerformedBy: performedBy(r),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// WriteOffRequest is the payload for writing off stock. Quantity omitted or
// zero writes off everything left.
type WriteOffRequest struct {
	Type     string `json:"type" validate:"required,oneof=expired damaged"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

// WriteOff handles POST /batches/{id}/write-off
func (h *StockHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	var req WriteOffRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.WriteOff(r.Context(), service.WriteOffInput{
		BatchID:     chi.URLParam(r, "id"),
		Type:        service.WriteOffType(req.Type),
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		PerformedBy: performedBy(r),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// RecallRequest is the payload for recalling stock. Quantity omitted or zero
// recalls everything left.
type RecallRequest struct {
	Quantity     int     `json:"quantity" validate:"gte=0"`
	RecallNumber string  `json:"recall_number" validate:"required,max=100"`
	RecallReason string  `json:"recall_reason" validate:"required,max=500"`
	RecallClass  *string `json:"recall_class,omitempty"`
}

// Recall handles POST /batches/{id}/recall
func (h *StockHandler) Recall(w http.ResponseWriter, r *http.Request) {
	var req RecallRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.Recall(r.Context(), service.RecallInput{
		BatchID:      chi.URLParam(r, "id"),
		Quantity:     req.Quantity,
		RecallNumber: req.RecallNumber,
		RecallReason: req.RecallReason,
		RecallClass:  req.RecallClass,
		PerformedBy:  performedBy(r),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// Availability handles GET /availability?drug_id=&quantity=
func (h *StockHandler) Availability(w http.ResponseWriter, r *http.Request) {
	drugID := r.URL.Query().Get("drug_id")
	if drugID == "" {
		httputil.Error(w, errors.Validation(map[string]string{"drug_id": "required"}))
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity <= 0 {
		httputil.Error(w, errors.Validation(map[string]string{"quantity": "must be a positive integer"}))
		return
	}

	plan, err := h.stock.CheckAvailability(r.Context(), drugID, quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, plan)
}

// SyncDrug handles POST /drugs/{id}/sync
func (h *StockHandler) SyncDrug(w http.ResponseWriter, r *http.Request) {
	quantity, err := h.stock.SyncDrugQuantity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int{"quantity": quantity})
}
