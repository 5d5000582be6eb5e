package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// ReservationHandler serves the reservation endpoints
type ReservationHandler struct {
	reservations *service.ReservationService
	logger       *logger.Logger
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservations *service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		logger:       log.WithComponent("reservation_handler"),
	}
}

// ReserveRequest is the payload for taking a reservation. TTLHours zero
// falls back to the configured default.
type ReserveRequest struct {
	DrugID         string `json:"drug_id" validate:"required,uuid"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	OrderReference string `json:"order_reference" validate:"required,max=100"`
	TTLHours       int    `json:"ttl_hours" validate:"gte=0,max=720"`
}

// Reserve handles POST /reservations
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.reservations.Reserve(r.Context(), req.DrugID, req.Quantity, req.OrderReference, time.Duration(req.TTLHours)*time.Hour)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, result)
}

// List handles GET /reservations/{orderRef}
func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	holds, err := h.reservations.ListByOrder(r.Context(), chi.URLParam(r, "orderRef"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, holds)
}

// ListByBatch handles GET /batches/{id}/reservations
func (h *ReservationHandler) ListByBatch(w http.ResponseWriter, r *http.Request) {
	holds, err := h.reservations.ListByBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, holds)
}

// Release handles DELETE /reservations/{orderRef}
func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	released, err := h.reservations.Release(r.Context(), chi.URLParam(r, "orderRef"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]int{"quantity_released": released})
}
