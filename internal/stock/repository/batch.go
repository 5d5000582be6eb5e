package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// BatchRepository handles stock batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch together with its RECEIVED ledger entry in one
// transaction. The internal batch number and transaction number are drawn
// from the per-day counters inside the same transaction.
func (r *BatchRepository) Create(ctx context.Context, batch *domain.StockBatch, txn *domain.StockTransaction) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if batch.ID == "" {
			batch.ID = uuid.New().String()
		}

		internalID, err := nextBatchNumber(ctx, tx, batch.ReceivedDate)
		if err != nil {
			return err
		}
		batch.InternalBatchID = internalID
		batch.Version = 1

		query := `
			INSERT INTO stock_batches (
				id, internal_batch_id, batch_number, drug_id, supplier_id, pharmacy_id,
				expiry_date, no_expiry, manufacture_date, received_date,
				quantity_received, quantity_available, quantity_reserved,
				quantity_sold, quantity_damaged, quantity_returned,
				cost_price, selling_price_override, total_cost,
				status, status_reason, status_changed_at, status_changed_by,
				notes, version
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19,
				$20, $21, $22, $23, $24, $25
			)
			RETURNING created_at, updated_at
		`

		err = tx.QueryRowxContext(ctx, query,
			batch.ID, batch.InternalBatchID, batch.BatchNumber,
			batch.DrugID, batch.SupplierID, batch.PharmacyID,
			batch.ExpiryDate, batch.NoExpiry, batch.ManufactureDate, batch.ReceivedDate,
			batch.QuantityReceived, batch.QuantityAvailable, batch.QuantityReserved,
			batch.QuantitySold, batch.QuantityDamaged, batch.QuantityReturned,
			batch.CostPrice, batch.SellingPriceOverride, batch.TotalCost,
			batch.Status, batch.StatusReason, batch.StatusChangedAt, batch.StatusChangedBy,
			batch.Notes, batch.Version,
		).Scan(&batch.CreatedAt, &batch.UpdatedAt)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		txn.BatchID = batch.ID
		return insertTransactionTx(ctx, tx, txn)
	})
}

// GetByID gets a batch by ID
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.StockBatch, error) {
	var batch domain.StockBatch
	query := `SELECT * FROM stock_batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("batch")
		}
		return nil, err
	}
	return &batch, nil
}

// ListByDrug lists all batches for a drug, FEFO-ordered: dated batches
// first by soonest expiry, perpetual-shelf-life batches last.
func (r *BatchRepository) ListByDrug(ctx context.Context, drugID string) ([]*domain.StockBatch, error) {
	var batches []*domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE drug_id = $1
		ORDER BY no_expiry ASC, expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, drugID); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListActiveByDrug lists ACTIVE batches with stock on hand for a drug,
// FEFO-ordered. This is the allocation engine's input.
func (r *BatchRepository) ListActiveByDrug(ctx context.Context, drugID string) ([]*domain.StockBatch, error) {
	var batches []*domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE drug_id = $1 AND status = $2 AND quantity_available > 0
		ORDER BY no_expiry ASC, expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query, drugID, domain.BatchStatusActive); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListStocked lists every batch that still holds stock, across all drugs
func (r *BatchRepository) ListStocked(ctx context.Context) ([]*domain.StockBatch, error) {
	var batches []*domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE quantity_available > 0
		ORDER BY no_expiry ASC, expiry_date ASC NULLS LAST, created_at ASC
	`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAll lists every batch regardless of status or quantity
func (r *BatchRepository) ListAll(ctx context.Context) ([]*domain.StockBatch, error) {
	var batches []*domain.StockBatch
	query := `SELECT * FROM stock_batches ORDER BY received_date DESC, created_at DESC`
	if err := r.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// Apply persists a set of batch mutations atomically: every batch update and
// its paired ledger append commit together or not at all. Each batch update
// is guarded by the version the caller read; a concurrent writer surfaces as
// a Conflict and the whole set rolls back.
func (r *BatchRepository) Apply(ctx context.Context, muts []domain.BatchMutation) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for _, m := range muts {
			if err := updateBatchTx(ctx, tx, m.Batch); err != nil {
				return err
			}
			// Status-only transitions (quarantine and release) mutate no
			// quantities and carry no ledger entry.
			if m.Txn == nil {
				continue
			}
			if err := insertTransactionTx(ctx, tx, m.Txn); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyReversal persists a compensating mutation and flags the original
// transaction as reversed, all in one transaction. Reversing an already
// reversed transaction fails with a Conflict.
func (r *BatchRepository) ApplyReversal(ctx context.Context, mut domain.BatchMutation, originalTxnRowID string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := updateBatchTx(ctx, tx, mut.Batch); err != nil {
			return err
		}
		if err := insertTransactionTx(ctx, tx, mut.Txn); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE stock_transactions
			SET is_reversed = TRUE, reversed_by_transaction = $2
			WHERE id = $1 AND is_reversed = FALSE
		`, originalTxnRowID, mut.Txn.TransactionID)
		if err != nil {
			return err
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.Conflict("transaction has already been reversed")
		}
		return nil
	})
}

// updateBatchTx writes a batch's quantity, status and recall fields with an
// optimistic version check. Zero rows affected means a concurrent writer won.
func updateBatchTx(ctx context.Context, tx *sqlx.Tx, batch *domain.StockBatch) error {
	query := `
		UPDATE stock_batches SET
			quantity_received = $3, quantity_available = $4, quantity_reserved = $5,
			quantity_sold = $6, quantity_damaged = $7, quantity_returned = $8,
			status = $9, status_reason = $10, status_changed_at = $11, status_changed_by = $12,
			recall_number = $13, recall_date = $14, recall_reason = $15, recall_class = $16,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
	`

	result, err := tx.ExecContext(ctx, query,
		batch.ID, batch.Version,
		batch.QuantityReceived, batch.QuantityAvailable, batch.QuantityReserved,
		batch.QuantitySold, batch.QuantityDamaged, batch.QuantityReturned,
		batch.Status, batch.StatusReason, batch.StatusChangedAt, batch.StatusChangedBy,
		batch.RecallNumber, batch.RecallDate, batch.RecallReason, batch.RecallClass,
	)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("batch was modified concurrently")
	}

	batch.Version++
	batch.UpdatedAt = time.Now()
	return nil
}

// insertTransactionTx appends a ledger row, drawing the transaction number
// from the per-day counter inside the caller's transaction.
func insertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *domain.StockTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}

	number, err := nextTransactionNumber(ctx, tx, time.Now())
	if err != nil {
		return err
	}
	txn.TransactionID = number

	query := `
		INSERT INTO stock_transactions (
			id, transaction_id, drug_id, batch_id, supplier_id, customer_id,
			type, quantity, quantity_before, quantity_after,
			unit_cost, unit_price, total_value,
			reference_type, reference_id, reference_number,
			reason, notes,
			is_reversal, reverses_transaction, is_reversed,
			performed_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22
		)
		RETURNING created_at
	`

	err = tx.QueryRowxContext(ctx, query,
		txn.ID, txn.TransactionID, txn.DrugID, txn.BatchID, txn.SupplierID, txn.CustomerID,
		txn.Type, txn.Quantity, txn.QuantityBefore, txn.QuantityAfter,
		txn.UnitCost, txn.UnitPrice, txn.TotalValue,
		txn.ReferenceType, txn.ReferenceID, txn.ReferenceNumber,
		txn.Reason, txn.Notes,
		txn.IsReversal, txn.ReversesTransaction, txn.IsReversed,
		txn.PerformedBy,
	).Scan(&txn.CreatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}
