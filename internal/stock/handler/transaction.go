package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// TransactionHandler serves the ledger endpoints
type TransactionHandler struct {
	stock  *service.StockService
	logger *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(stock *service.StockService, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		stock:  stock,
		logger: log.WithComponent("transaction_handler"),
	}
}

// Get handles GET /transactions/{id} by TXN number
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.stock.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txn)
}

// ListByDrug handles GET /drugs/{id}/transactions?from=&to= (dates, default
// last 30 days)
func (h *TransactionHandler) ListByDrug(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	var err error

	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"from": "must be a date in YYYY-MM-DD format"}))
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"to": "must be a date in YYYY-MM-DD format"}))
			return
		}
	}

	txns, err := h.stock.ListDrugTransactions(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, txns)
}

// ReverseRequest carries the reason for a reversal
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Reverse handles POST /transactions/{id}/reverse
func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req ReverseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	reversal, err := h.stock.ReverseTransaction(r.Context(), chi.URLParam(r, "id"), req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, reversal)
}
