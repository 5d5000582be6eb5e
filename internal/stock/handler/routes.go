package handler

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the stock API under the given router
func RegisterRoutes(r chi.Router, batches *BatchHandler, stock *StockHandler, transactions *TransactionHandler, reservations *ReservationHandler, reports *ReportHandler) {
	r.Route("/batches", func(r chi.Router) {
		r.Post("/", batches.Receive)
		r.Get("/", batches.List)
		r.Get("/{id}", batches.Get)
		r.Get("/{id}/transactions", batches.ListTransactions)
		r.Get("/{id}/reservations", reservations.ListByBatch)
		r.Post("/{id}/adjust", stock.Adjust)
		r.Post("/{id}/return", stock.Return)
		r.Post("/{id}/write-off", stock.WriteOff)
		r.Post("/{id}/recall", stock.Recall)
		r.Post("/{id}/quarantine", batches.Quarantine)
		r.Post("/{id}/release-quarantine", batches.ReleaseQuarantine)
	})

	r.Post("/dispense", stock.Dispense)
	r.Get("/availability", stock.Availability)
	r.Get("/drugs/{id}/transactions", transactions.ListByDrug)
	r.Post("/drugs/{id}/sync", stock.SyncDrug)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/{id}", transactions.Get)
		r.Post("/{id}/reverse", transactions.Reverse)
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", reservations.Reserve)
		r.Get("/{orderRef}", reservations.List)
		r.Delete("/{orderRef}", reservations.Release)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/valuation", reports.Valuation)
		r.Get("/expiry", reports.Expiry)
		r.Get("/movement", reports.Movement)
	})
}
