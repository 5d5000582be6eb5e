package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// BatchHandler serves the batch resource endpoints
type BatchHandler struct {
	stock  *service.StockService
	logger *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(stock *service.StockService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		stock:  stock,
		logger: log.WithComponent("batch_handler"),
	}
}

// ReceiveRequest is the payload for receiving a new shipment
type ReceiveRequest struct {
	DrugID      string `json:"drug_id" validate:"required,uuid"`
	SupplierID  string `json:"supplier_id" validate:"required,uuid"`
	PharmacyID  string `json:"pharmacy_id" validate:"required"`
	BatchNumber string `json:"batch_number" validate:"required,max=100"`

	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	CostPrice string `json:"cost_price" validate:"required"`

	ExpiryDate      string `json:"expiry_date,omitempty"`
	NoExpiry        bool   `json:"no_expiry"`
	ManufactureDate string `json:"manufacture_date,omitempty"`
	ReceivedDate    string `json:"received_date,omitempty"`

	SellingPriceOverride string  `json:"selling_price_override,omitempty"`
	Notes                *string `json:"notes,omitempty"`

	ReferenceType   *string `json:"reference_type,omitempty"`
	ReferenceID     *string `json:"reference_id,omitempty"`
	ReferenceNumber *string `json:"reference_number,omitempty"`
}

// Receive handles POST /batches
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	costPrice, err := decimal.NewFromString(req.CostPrice)
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"cost_price": "must be a decimal number"}))
		return
	}

	in := service.ReceiveInput{
		DrugID:      req.DrugID,
		SupplierID:  req.SupplierID,
		PharmacyID:  req.PharmacyID,
		BatchNumber: req.BatchNumber,
		Quantity:    req.Quantity,
		CostPrice:   costPrice,
		NoExpiry:    req.NoExpiry,
		Notes:       req.Notes,
		Reference: domain.Reference{
			Type:   req.ReferenceType,
			ID:     req.ReferenceID,
			Number: req.ReferenceNumber,
		},
		PerformedBy: performedBy(r),
	}

	if in.ExpiryDate, err = parseDate(req.ExpiryDate, "expiry_date"); err != nil {
		httputil.Error(w, err)
		return
	}
	if in.ManufactureDate, err = parseDate(req.ManufactureDate, "manufacture_date"); err != nil {
		httputil.Error(w, err)
		return
	}
	if in.ReceivedDate, err = parseDate(req.ReceivedDate, "received_date"); err != nil {
		httputil.Error(w, err)
		return
	}

	if req.SellingPriceOverride != "" {
		override, err := decimal.NewFromString(req.SellingPriceOverride)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"selling_price_override": "must be a decimal number"}))
			return
		}
		in.SellingPriceOverride = decimal.NewNullDecimal(override)
	}

	batch, err := h.stock.Receive(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, batch)
}

// List handles GET /batches, optionally filtered by drug_id
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	batches, err := h.stock.ListBatches(r.Context(), r.URL.Query().Get("drug_id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batches)
}

// Get handles GET /batches/{id}
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	batch, err := h.stock.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// ListTransactions handles GET /batches/{id}/transactions
func (h *BatchHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.stock.ListBatchTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txns)
}

// StatusChangeRequest carries the reason for a status transition
type StatusChangeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Quarantine handles POST /batches/{id}/quarantine
func (h *BatchHandler) Quarantine(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.Quarantine(r.Context(), chi.URLParam(r, "id"), req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

// ReleaseQuarantine handles POST /batches/{id}/release-quarantine
func (h *BatchHandler) ReleaseQuarantine(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.stock.ReleaseQuarantine(r.Context(), chi.URLParam(r, "id"), req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, batch)
}

func parseDate(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, errors.Validation(map[string]string{field: "must be a date in YYYY-MM-DD format"})
	}
	return &t, nil
}

func performedBy(r *http.Request) *string {
	userID := httputil.GetUserID(r.Context())
	if userID == "" {
		return nil
	}
	return &userID
}
