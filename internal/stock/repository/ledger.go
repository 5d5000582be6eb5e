package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// LedgerRepository reads the append-only stock transaction ledger. All
// writes go through BatchRepository so a ledger row can never be committed
// apart from its batch mutation.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetByID gets a transaction by row ID
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*domain.StockTransaction, error) {
	var txn domain.StockTransaction
	query := `SELECT * FROM stock_transactions WHERE id = $1`
	if err := r.db.GetContext(ctx, &txn, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("transaction")
		}
		return nil, err
	}
	return &txn, nil
}

// GetByTransactionID gets a transaction by its human-readable number
func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.StockTransaction, error) {
	var txn domain.StockTransaction
	query := `SELECT * FROM stock_transactions WHERE transaction_id = $1`
	if err := r.db.GetContext(ctx, &txn, query, transactionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("transaction")
		}
		return nil, err
	}
	return &txn, nil
}

// ListByBatch lists a batch's transactions in append order. Replaying the
// signed quantities in this order reconstructs the batch's running total.
func (r *LedgerRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.StockTransaction, error) {
	var txns []*domain.StockTransaction
	query := `
		SELECT * FROM stock_transactions
		WHERE batch_id = $1
		ORDER BY created_at ASC, transaction_id ASC
	`
	if err := r.db.SelectContext(ctx, &txns, query, batchID); err != nil {
		return nil, err
	}
	return txns, nil
}

// ListByDrug lists a drug's transactions over a window, newest first
func (r *LedgerRepository) ListByDrug(ctx context.Context, drugID string, from, to time.Time) ([]*domain.StockTransaction, error) {
	var txns []*domain.StockTransaction
	query := `
		SELECT * FROM stock_transactions
		WHERE drug_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &txns, query, drugID, from, to); err != nil {
		return nil, err
	}
	return txns, nil
}

// ListRange lists all transactions in a window, oldest first. Feeds the
// movement report.
func (r *LedgerRepository) ListRange(ctx context.Context, from, to time.Time) ([]*domain.StockTransaction, error) {
	var txns []*domain.StockTransaction
	query := `
		SELECT * FROM stock_transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	if err := r.db.SelectContext(ctx, &txns, query, from, to); err != nil {
		return nil, err
	}
	return txns, nil
}
