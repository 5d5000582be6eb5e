package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestEffectiveAvailable(t *testing.T) {
	b := &StockBatch{QuantityAvailable: 50, QuantityReserved: 20}
	assert.Equal(t, 30, b.EffectiveAvailable())

	b.QuantityReserved = 50
	assert.Equal(t, 0, b.EffectiveAvailable())

	// A hold larger than availability never goes negative.
	b.QuantityReserved = 60
	assert.Equal(t, 0, b.EffectiveAvailable())
}

func TestIsExpired(t *testing.T) {
	now := date(2025, 6, 1)

	expiry := date(2025, 5, 1)
	b := &StockBatch{ExpiryDate: &expiry}
	assert.True(t, b.IsExpired(now))

	future := date(2025, 7, 1)
	b.ExpiryDate = &future
	assert.False(t, b.IsExpired(now))

	b = &StockBatch{NoExpiry: true}
	assert.False(t, b.IsExpired(now))

	b = &StockBatch{}
	assert.False(t, b.IsExpired(now))
}

func TestDaysUntilExpiry(t *testing.T) {
	now := date(2025, 6, 1)

	expiry := date(2025, 6, 15)
	b := &StockBatch{ExpiryDate: &expiry}
	days, ok := b.DaysUntilExpiry(now)
	require.True(t, ok)
	assert.Equal(t, 14, days)

	past := date(2025, 5, 29)
	b.ExpiryDate = &past
	days, ok = b.DaysUntilExpiry(now)
	require.True(t, ok)
	assert.Equal(t, -3, days)

	b = &StockBatch{NoExpiry: true}
	_, ok = b.DaysUntilExpiry(now)
	assert.False(t, ok)
}

func TestSetStatus(t *testing.T) {
	at := date(2025, 6, 1)
	b := &StockBatch{Status: BatchStatusActive}

	b.SetStatus(BatchStatusQuarantine, "temperature excursion", "user-1", at)
	assert.Equal(t, BatchStatusQuarantine, b.Status)
	require.NotNil(t, b.StatusReason)
	assert.Equal(t, "temperature excursion", *b.StatusReason)
	require.NotNil(t, b.StatusChangedAt)
	assert.Equal(t, at, *b.StatusChangedAt)
	require.NotNil(t, b.StatusChangedBy)
	assert.Equal(t, "user-1", *b.StatusChangedBy)

	// An empty reason clears the previous one.
	b.SetStatus(BatchStatusActive, "", "", at)
	assert.Nil(t, b.StatusReason)
}

func TestUnitSellingPrice(t *testing.T) {
	fallback := decimal.NewFromInt(200)

	b := &StockBatch{}
	assert.True(t, b.UnitSellingPrice(fallback).Equal(fallback))

	b.SellingPriceOverride = decimal.NewNullDecimal(decimal.NewFromInt(250))
	assert.True(t, b.UnitSellingPrice(fallback).Equal(decimal.NewFromInt(250)))
}

func TestTransactionConsistent(t *testing.T) {
	txn := &StockTransaction{Quantity: -30, QuantityBefore: 100, QuantityAfter: 70}
	assert.True(t, txn.Consistent())

	txn.QuantityAfter = 80
	assert.False(t, txn.Consistent())

	// Reservation audit entries move nothing.
	txn = &StockTransaction{Quantity: 0, QuantityBefore: 40, QuantityAfter: 40}
	assert.True(t, txn.Consistent())
}
