package service

import (
	"context"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
)

// BatchStore is the persistence contract for stock batches. The repository
// implementation guarantees that Apply commits every batch update together
// with its paired ledger entry, or nothing at all.
type BatchStore interface {
	GetByID(ctx context.Context, id string) (*domain.StockBatch, error)
	ListByDrug(ctx context.Context, drugID string) ([]*domain.StockBatch, error)
	ListActiveByDrug(ctx context.Context, drugID string) ([]*domain.StockBatch, error)
	ListStocked(ctx context.Context) ([]*domain.StockBatch, error)
	ListAll(ctx context.Context) ([]*domain.StockBatch, error)
	Create(ctx context.Context, batch *domain.StockBatch, txn *domain.StockTransaction) error
	Apply(ctx context.Context, muts []domain.BatchMutation) error
	ApplyReversal(ctx context.Context, mut domain.BatchMutation, originalTxnRowID string) error
}

// LedgerStore reads the append-only transaction ledger
type LedgerStore interface {
	GetByID(ctx context.Context, id string) (*domain.StockTransaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.StockTransaction, error)
	ListByBatch(ctx context.Context, batchID string) ([]*domain.StockTransaction, error)
	ListByDrug(ctx context.Context, drugID string, from, to time.Time) ([]*domain.StockTransaction, error)
	ListRange(ctx context.Context, from, to time.Time) ([]*domain.StockTransaction, error)
}

// ReservationStore persists stock holds together with their paired batch
// bookkeeping mutations
type ReservationStore interface {
	Create(ctx context.Context, holds []*domain.Reservation, muts []domain.BatchMutation) error
	Delete(ctx context.Context, holdIDs []string, muts []domain.BatchMutation) error
	ListByOrder(ctx context.Context, orderReference string) ([]*domain.Reservation, error)
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Reservation, error)
	ListByBatch(ctx context.Context, batchID string) ([]*domain.Reservation, error)
}

// DrugStore reads product records and writes the derived quantity cache
type DrugStore interface {
	GetByID(ctx context.Context, id string) (*domain.Drug, error)
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Drug, error)
	UpdateAggregate(ctx context.Context, drugID string, quantity int) error
	ListDirectQuantity(ctx context.Context) ([]*domain.Drug, error)
}

// SupplierStore reads the local supplier cache and records order activity
type SupplierStore interface {
	GetByID(ctx context.Context, id string) (*domain.Supplier, error)
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Supplier, error)
	RecordOrder(ctx context.Context, id string, at time.Time) error
}
