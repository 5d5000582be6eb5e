package service

import (
	"context"
	"fmt"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// ReverseTransaction undoes a past ledger entry with a compensating entry of
// the opposite sign and re-applies the quantities to the batch. History is
// never rewritten: the original row only gains reversal linkage. A
// transaction can be reversed at most once, and reversals themselves cannot
// be reversed.
func (s *StockService) ReverseTransaction(ctx context.Context, transactionID, reason string, performedBy *string) (*domain.StockTransaction, error) {
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "required"})
	}

	original, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.IsReversal {
		return nil, errors.InvalidState("a reversal cannot itself be reversed")
	}
	if original.IsReversed {
		return nil, errors.Conflict("transaction has already been reversed")
	}

	switch original.Type {
	case domain.TxnReceived:
		return nil, errors.InvalidState("a receipt cannot be reversed, return the stock to the supplier instead")
	case domain.TxnReserved, domain.TxnUnreserved:
		return nil, errors.InvalidState("reservation audit entries cannot be reversed")
	case domain.TxnTransferIn, domain.TxnTransferOut:
		return nil, errors.InvalidState("transfers are reversed by a compensating transfer")
	}

	var reversal *domain.StockTransaction
	err = s.withRetry(ctx, func(ctx context.Context) error {
		batch, err := s.batches.GetByID(ctx, original.BatchID)
		if err != nil {
			return err
		}
		if err := undoQuantities(batch, original); err != nil {
			return err
		}

		now := s.now()
		switch {
		case batch.QuantityAvailable > 0 && batch.Status != domain.BatchStatusActive:
			if batch.Status == domain.BatchStatusRecalled {
				batch.RecallNumber = nil
				batch.RecallDate = nil
				batch.RecallReason = nil
				batch.RecallClass = nil
			}
			batch.SetStatus(domain.BatchStatusActive, fmt.Sprintf("reinstated by reversal of %s", original.TransactionID), deref(performedBy), now)
		case batch.QuantityAvailable == 0 && batch.Status == domain.BatchStatusActive:
			batch.SetStatus(domain.BatchStatusDepleted, fmt.Sprintf("stock exhausted by reversal of %s", original.TransactionID), deref(performedBy), now)
		}

		reversal = &domain.StockTransaction{
			DrugID:              batch.DrugID,
			BatchID:             batch.ID,
			SupplierID:          original.SupplierID,
			CustomerID:          original.CustomerID,
			Type:                original.Type,
			Quantity:            -original.Quantity,
			QuantityBefore:      batch.QuantityAvailable + original.Quantity,
			QuantityAfter:       batch.QuantityAvailable,
			UnitCost:            original.UnitCost,
			UnitPrice:           original.UnitPrice,
			TotalValue:          original.TotalValue,
			Reason:              &reason,
			IsReversal:          true,
			ReversesTransaction: &original.TransactionID,
			PerformedBy:         performedBy,
		}
		return s.batches.ApplyReversal(ctx, domain.BatchMutation{Batch: batch, Txn: reversal}, original.ID)
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, original.DrugID)

	s.logger.Info().
		Str("transaction_id", original.TransactionID).
		Str("reversal_id", reversal.TransactionID).
		Str("batch_id", original.BatchID).
		Msg("transaction reversed")

	return reversal, nil
}

// undoQuantities re-applies a transaction's effect backwards across the
// batch's quantity partition, refusing when the partition no longer holds
// enough to give back.
func undoQuantities(batch *domain.StockBatch, txn *domain.StockTransaction) error {
	q := txn.Quantity
	if q < 0 {
		q = -q
	}

	switch txn.Type {
	case domain.TxnSold:
		if batch.QuantitySold < q {
			return errors.InvalidState("batch no longer carries the sold quantity to reverse")
		}
		batch.QuantitySold -= q
		batch.QuantityAvailable += q
	case domain.TxnReturnFromCustomer:
		if batch.QuantityAvailable < q {
			return errors.InsufficientStock(q, batch.QuantityAvailable)
		}
		batch.QuantityAvailable -= q
		batch.QuantitySold += q
	case domain.TxnAdjustmentAdd:
		if batch.QuantityAvailable < q {
			return errors.InsufficientStock(q, batch.QuantityAvailable)
		}
		batch.QuantityAvailable -= q
		batch.QuantityReceived -= q
	case domain.TxnAdjustmentSubtract, domain.TxnExpired, domain.TxnRecalled:
		batch.QuantityAvailable += q
	case domain.TxnDamaged:
		if batch.QuantityDamaged < q {
			return errors.InvalidState("batch no longer carries the damaged quantity to reverse")
		}
		batch.QuantityDamaged -= q
		batch.QuantityAvailable += q
	case domain.TxnReturnToSupplier:
		if batch.QuantityReturned < q {
			return errors.InvalidState("batch no longer carries the returned quantity to reverse")
		}
		batch.QuantityReturned -= q
		batch.QuantityAvailable += q
	default:
		return errors.InvalidState(fmt.Sprintf("transactions of type %s cannot be reversed", txn.Type))
	}
	return nil
}
