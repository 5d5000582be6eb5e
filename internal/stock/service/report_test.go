package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
)

func TestValuation(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)

	receiveBatch(t, f, "drug-1", 5, 100, datePtr(2026, 3, 1))
	receiveBatch(t, f, "drug-1", 10, 120, datePtr(2026, 6, 1))

	report, err := f.reports.Valuation(context.Background())
	require.NoError(t, err)

	// 5*100 + 10*120 at cost, 15*200 at retail.
	assert.True(t, report.TotalCostValue.Equal(decimalFromInt(1700)), "cost %s", report.TotalCostValue)
	assert.True(t, report.TotalRetailValue.Equal(decimalFromInt(3000)), "retail %s", report.TotalRetailValue)
	assert.True(t, report.ProfitMargin.Equal(decimal.RequireFromString("43.33")), "margin %s", report.ProfitMargin)

	require.Len(t, report.ByProduct, 1)
	product := report.ByProduct[0]
	assert.Equal(t, "drug-1", product.DrugID)
	assert.Equal(t, 15, product.Quantity)
	assert.True(t, product.CostValue.Equal(decimalFromInt(1700)))

	require.Len(t, report.ByCategory, 1)
	assert.Equal(t, "analgesics", report.ByCategory[0].Category)
	assert.Equal(t, 15, report.ByCategory[0].Quantity)

	require.Len(t, report.BySupplier, 1)
	supplier := report.BySupplier[0]
	assert.Equal(t, "sup-1", supplier.SupplierID)
	assert.Equal(t, 2, supplier.Batches)
	assert.Equal(t, 15, supplier.Quantity)
}

func TestValuation_SellingPriceOverride(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)

	_, err := f.stock.Receive(context.Background(), ReceiveInput{
		DrugID: "drug-1", SupplierID: "sup-1", PharmacyID: "pharm-1",
		BatchNumber: "LOT-1", Quantity: 10, CostPrice: decimalFromInt(100),
		ExpiryDate:           datePtr(2026, 3, 1),
		SellingPriceOverride: decimal.NewNullDecimal(decimalFromInt(250)),
	})
	require.NoError(t, err)

	report, err := f.reports.Valuation(context.Background())
	require.NoError(t, err)
	// The batch override wins over the product list price.
	assert.True(t, report.TotalRetailValue.Equal(decimalFromInt(2500)), "retail %s", report.TotalRetailValue)
}

func TestValuation_LegacyDirectQuantity(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	receiveBatch(t, f, "drug-1", 10, 100, datePtr(2026, 3, 1))

	f.st.drugs["legacy-1"] = &domain.Drug{
		ID: "legacy-1", Name: "Aspirin 100mg", Category: "analgesics",
		Price: decimalFromInt(50), Quantity: 20, IsAvailable: true,
	}

	report, err := f.reports.Valuation(context.Background())
	require.NoError(t, err)

	// Legacy stock is valued at list price for both sides: 1000 + 20*50.
	assert.True(t, report.TotalCostValue.Equal(decimalFromInt(2000)), "cost %s", report.TotalCostValue)
	assert.True(t, report.TotalRetailValue.Equal(decimalFromInt(3000)), "retail %s", report.TotalRetailValue)

	require.Len(t, report.ByProduct, 2)
	var legacy *DrugValuation
	for i := range report.ByProduct {
		if report.ByProduct[i].DrugID == "legacy-1" {
			legacy = &report.ByProduct[i]
		}
	}
	require.NotNil(t, legacy)
	assert.True(t, legacy.Legacy)
	assert.True(t, legacy.ProfitMargin.IsZero())

	// No batches means no supplier to attribute the stock to.
	require.Len(t, report.BySupplier, 1)
	assert.Equal(t, 10, report.BySupplier[0].Quantity)
}

func TestExpiry(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)

	// Fixture clock sits at 2025-06-01.
	expired := receiveBatch(t, f, "drug-1", 5, 10, datePtr(2025, 5, 20))
	critical := receiveBatch(t, f, "drug-1", 10, 10, datePtr(2025, 6, 15))
	mid := receiveBatch(t, f, "drug-1", 10, 10, datePtr(2025, 7, 15))
	far := receiveBatch(t, f, "drug-1", 10, 10, datePtr(2026, 6, 1))
	perpetual := receiveBatch(t, f, "drug-1", 10, 10, nil)

	// A drained batch still counts in the status tally but not the buckets.
	_, err := f.stock.Dispense(context.Background(), DispenseInput{DrugID: "drug-1", Quantity: 10, BatchID: far.ID})
	require.NoError(t, err)

	report, err := f.reports.Expiry(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Buckets.Expired, 1)
	assert.Equal(t, expired.ID, report.Buckets.Expired[0].BatchID)
	require.Len(t, report.Buckets.Days0To30, 1)
	assert.Equal(t, critical.ID, report.Buckets.Days0To30[0].BatchID)
	require.Len(t, report.Buckets.Days31To60, 1)
	assert.Equal(t, mid.ID, report.Buckets.Days31To60[0].BatchID)
	assert.Empty(t, report.Buckets.Over90)
	require.Len(t, report.Buckets.NoExpiry, 1)
	assert.Equal(t, perpetual.ID, report.Buckets.NoExpiry[0].BatchID)

	// Critical list is expired plus 0-30 days, soonest first.
	require.Len(t, report.CriticalBatches, 2)
	assert.Equal(t, expired.ID, report.CriticalBatches[0].BatchID)
	assert.Equal(t, critical.ID, report.CriticalBatches[1].BatchID)

	assert.Equal(t, 4, report.StatusCounts[string(domain.BatchStatusActive)])
	assert.Equal(t, 1, report.StatusCounts[string(domain.BatchStatusDepleted)])
}

func TestMovement(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addDrug("drug-2", "Ibuprofen 400mg", "analgesics", 150)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)

	ctx := context.Background()
	batch1 := receiveBatch(t, f, "drug-1", 100, 10, datePtr(2026, 6, 1))
	receiveBatch(t, f, "drug-2", 50, 8, datePtr(2026, 6, 1))

	f.now = f.now.Add(24 * time.Hour)
	_, err := f.stock.Dispense(ctx, DispenseInput{DrugID: "drug-1", Quantity: 30, BatchID: batch1.ID})
	require.NoError(t, err)
	_, err = f.stock.Dispense(ctx, DispenseInput{DrugID: "drug-2", Quantity: 5})
	require.NoError(t, err)
	_, err = f.stock.AdjustStock(ctx, AdjustInput{BatchID: batch1.ID, Type: AdjustmentSubtract, Quantity: 2, Reason: "breakage"})
	require.NoError(t, err)

	report, err := f.reports.Movement(ctx, f.now.Add(-7*24*time.Hour), f.now.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, MovementTotal{Count: 2, Quantity: 150}, report.ByType[string(domain.TxnReceived)])
	assert.Equal(t, MovementTotal{Count: 2, Quantity: 35}, report.ByType[string(domain.TxnSold)])
	assert.Equal(t, MovementTotal{Count: 1, Quantity: 2}, report.ByType[string(domain.TxnAdjustmentSubtract)])

	require.Len(t, report.Daily, 2)
	assert.Equal(t, "2025-06-01", report.Daily[0].Date)
	assert.Equal(t, 150, report.Daily[0].Received)
	assert.Equal(t, "2025-06-02", report.Daily[1].Date)
	assert.Equal(t, 35, report.Daily[1].Sold)
	assert.Equal(t, 2, report.Daily[1].Adjusted)

	// drug-1 moved 132 units in total, drug-2 moved 55.
	require.Len(t, report.TopDrugs, 2)
	assert.Equal(t, "drug-1", report.TopDrugs[0].DrugID)
	assert.Equal(t, 100, report.TopDrugs[0].In)
	assert.Equal(t, 32, report.TopDrugs[0].Out)
	assert.Equal(t, 132, report.TopDrugs[0].Movement)
	assert.Equal(t, "drug-2", report.TopDrugs[1].DrugID)
}

func TestMovement_DefaultsToLast30Days(t *testing.T) {
	f := newFixture()
	f.addDrug("drug-1", "Paracetamol 500mg", "analgesics", 200)
	f.addSupplier("sup-1", "MediSupply GmbH", domain.SupplierStatusActive)
	receiveBatch(t, f, "drug-1", 10, 10, datePtr(2026, 6, 1))

	report, err := f.reports.Movement(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, f.now, report.To)
	assert.Equal(t, f.now.AddDate(0, 0, -30), report.From)
	assert.Equal(t, MovementTotal{Count: 1, Quantity: 10}, report.ByType[string(domain.TxnReceived)])
}
