package handler

import (
	"net/http"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// ReportHandler serves the read-only report endpoints
type ReportHandler struct {
	reports *service.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *service.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		logger:  log.WithComponent("report_handler"),
	}
}

// Valuation handles GET /reports/valuation
func (h *ReportHandler) Valuation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Valuation(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Expiry handles GET /reports/expiry
func (h *ReportHandler) Expiry(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Expiry(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}

// Movement handles GET /reports/movement?from=&to= (dates, default last 30 days)
func (h *ReportHandler) Movement(w http.ResponseWriter, r *http.Request) {
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
		// Make the end date inclusive.
		to = to.AddDate(0, 0, 1)
	}

	report, err := h.reports.Movement(r.Context(), from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, report)
}
