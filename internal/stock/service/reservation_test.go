package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

func TestReserveAndRelease(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	batch := receiveBatch(t, f, "drug-1", 100, 20, datePtr(2026, 6, 1))
	ledgerBefore := len(f.st.txns)

	result, err := f.reserve.Reserve(context.Background(), "drug-1", 40, "ORD-1001", 0)
	require.NoError(t, err)
	require.Len(t, result.Holds, 1)
	assert.Equal(t, 40, result.Holds[0].Quantity)
	assert.Equal(t, f.now.Add(48*time.Hour), result.ExpiresAt)

	// Holding raises the reservation counter, never availability.
	stored := f.batch(batch.ID)
	assert.Equal(t, 100, stored.QuantityAvailable)
	assert.Equal(t, 40, stored.QuantityReserved)

	// The audit entry moves no stock; the hold size rides in the notes.
	held := f.lastTxn()
	assert.Equal(t, domain.TxnReserved, held.Type)
	assert.Equal(t, 0, held.Quantity)
	assert.Equal(t, held.QuantityBefore, held.QuantityAfter)
	require.NotNil(t, held.ReferenceNumber)
	assert.Equal(t, "ORD-1001", *held.ReferenceNumber)
	require.NotNil(t, held.Notes)
	assert.Equal(t, "40 units reserved", *held.Notes)

	released, err := f.reserve.Release(context.Background(), "ORD-1001")
	require.NoError(t, err)
	assert.Equal(t, 40, released)

	stored = f.batch(batch.ID)
	assert.Equal(t, 100, stored.QuantityAvailable)
	assert.Equal(t, 0, stored.QuantityReserved)

	freed := f.lastTxn()
	assert.Equal(t, domain.TxnUnreserved, freed.Type)
	assert.Equal(t, 0, freed.Quantity)
	require.NotNil(t, freed.Notes)
	assert.Equal(t, "40 units released", *freed.Notes)

	holds, err := f.reserve.ListByOrder(context.Background(), "ORD-1001")
	require.NoError(t, err)
	assert.Empty(t, holds)

	// Reserve plus release leaves exactly two zero-delta audit entries.
	assert.Len(t, f.st.txns, ledgerBefore+2)
}

func TestReserve_HeldStockShrinksThePool(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	receiveBatch(t, f, "drug-1", 50, 20, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 30, "ORD-1001", 0)
	require.NoError(t, err)

	// Only 20 effective units remain, so 25 cannot be covered.
	_, err = f.reserve.Reserve(context.Background(), "drug-1", 25, "ORD-1002", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "20", appErr.Details["available"])

	// All-or-nothing: the failed order holds nothing.
	holds, err := f.reserve.ListByOrder(context.Background(), "ORD-1002")
	require.NoError(t, err)
	assert.Empty(t, holds)

	// A dispense planned over the same pool sees the same limit.
	_, err = f.stock.Dispense(context.Background(), DispenseInput{DrugID: "drug-1", Quantity: 25})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
}

func TestReserve_SpansBatchesFEFO(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	first := receiveBatch(t, f, "drug-1", 20, 20, datePtr(2025, 9, 1))
	second := receiveBatch(t, f, "drug-1", 30, 22, datePtr(2026, 3, 1))

	result, err := f.reserve.Reserve(context.Background(), "drug-1", 35, "ORD-1001", 0)
	require.NoError(t, err)
	require.Len(t, result.Holds, 2)
	assert.Equal(t, first.ID, result.Holds[0].BatchID)
	assert.Equal(t, 20, result.Holds[0].Quantity)
	assert.Equal(t, second.ID, result.Holds[1].BatchID)
	assert.Equal(t, 15, result.Holds[1].Quantity)

	assert.Equal(t, 20, f.batch(first.ID).QuantityReserved)
	assert.Equal(t, 15, f.batch(second.ID).QuantityReserved)
}

func TestReserve_DuplicateOrderReference(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	receiveBatch(t, f, "drug-1", 50, 20, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 10, "ORD-1001", 0)
	require.NoError(t, err)

	_, err = f.reserve.Reserve(context.Background(), "drug-1", 5, "ORD-1001", 0)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestRelease_UnknownOrderIsNoOp(t *testing.T) {
	f := newFixture()

	released, err := f.reserve.Release(context.Background(), "ORD-NOPE")
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestReleaseExpired(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	batch := receiveBatch(t, f, "drug-1", 100, 20, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 30, "ORD-1001", 24*time.Hour)
	require.NoError(t, err)
	_, err = f.reserve.Reserve(context.Background(), "drug-1", 10, "ORD-1002", 72*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 40, f.batch(batch.ID).QuantityReserved)

	// Two days pass; only the first order's hold ages out.
	f.now = f.now.Add(48 * time.Hour)

	released, err := f.reserve.ReleaseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, released)
	assert.Equal(t, 10, f.batch(batch.ID).QuantityReserved)

	holds, err := f.reserve.ListByOrder(context.Background(), "ORD-1001")
	require.NoError(t, err)
	assert.Empty(t, holds)

	holds, err = f.reserve.ListByOrder(context.Background(), "ORD-1002")
	require.NoError(t, err)
	assert.Len(t, holds, 1)
}

func TestListByBatch(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	batch := receiveBatch(t, f, "drug-1", 100, 20, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 30, "ORD-1001", 0)
	require.NoError(t, err)
	_, err = f.reserve.Reserve(context.Background(), "drug-1", 20, "ORD-1002", 0)
	require.NoError(t, err)

	holds, err := f.reserve.ListByBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, "ORD-1001", holds[0].OrderReference)
	assert.Equal(t, 30, holds[0].Quantity)
	assert.Equal(t, "ORD-1002", holds[1].OrderReference)
	assert.Equal(t, 20, holds[1].Quantity)

	_, err = f.reserve.ListByBatch(context.Background(), "batch-missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestReleaseExpired_SweepKeepsOrderAttribution(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addDrug("drug-2", "Ibuprofen 400mg", "analgesics", 150)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	first := receiveBatch(t, f, "drug-1", 100, 20, datePtr(2026, 6, 1))
	second := receiveBatch(t, f, "drug-2", 80, 10, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 30, "ORD-2001", 24*time.Hour)
	require.NoError(t, err)
	_, err = f.reserve.Reserve(context.Background(), "drug-2", 20, "ORD-2002", 24*time.Hour)
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)

	released, err := f.reserve.ReleaseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, released)
	assert.Zero(t, f.batch(first.ID).QuantityReserved)
	assert.Zero(t, f.batch(second.ID).QuantityReserved)

	// One sweep, two orders: each audit entry names the order that held
	// the stock on that batch, not whichever hold came first.
	freed := map[string]*domain.StockTransaction{}
	for _, txn := range f.st.txns {
		if txn.Type == domain.TxnUnreserved {
			freed[txn.BatchID] = txn
		}
	}
	require.Len(t, freed, 2)

	require.NotNil(t, freed[first.ID].ReferenceNumber)
	assert.Equal(t, "ORD-2001", *freed[first.ID].ReferenceNumber)
	require.NotNil(t, freed[first.ID].Notes)
	assert.Equal(t, "30 units released", *freed[first.ID].Notes)

	require.NotNil(t, freed[second.ID].ReferenceNumber)
	assert.Equal(t, "ORD-2002", *freed[second.ID].ReferenceNumber)
	require.NotNil(t, freed[second.ID].Notes)
	assert.Equal(t, "20 units released", *freed[second.ID].Notes)
}

func TestReleaseExpired_SharedBatchSplitsPerOrder(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	batch := receiveBatch(t, f, "drug-1", 100, 20, datePtr(2026, 6, 1))

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 30, "ORD-2001", 24*time.Hour)
	require.NoError(t, err)
	_, err = f.reserve.Reserve(context.Background(), "drug-1", 20, "ORD-2002", 24*time.Hour)
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)

	released, err := f.reserve.ReleaseExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, released)
	assert.Zero(t, f.batch(batch.ID).QuantityReserved)

	// Two orders on one batch get one audit entry each.
	byOrder := map[string]string{}
	for _, txn := range f.st.txns {
		if txn.Type == domain.TxnUnreserved {
			require.NotNil(t, txn.ReferenceNumber)
			require.NotNil(t, txn.Notes)
			byOrder[*txn.ReferenceNumber] = *txn.Notes
		}
	}
	require.Len(t, byOrder, 2)
	assert.Equal(t, "30 units released", byOrder["ORD-2001"])
	assert.Equal(t, "20 units released", byOrder["ORD-2002"])
}

func TestReserve_Validation(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Amoxicillin 250mg", "antibiotics", 300)

	_, err := f.reserve.Reserve(context.Background(), "drug-1", 0, "ORD-1001", 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.reserve.Reserve(context.Background(), "drug-1", 5, "", 0)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = f.reserve.Reserve(context.Background(), "drug-missing", 5, "ORD-1001", 0)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
