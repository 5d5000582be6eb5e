package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a stock batch
type BatchStatus string

const (
	BatchStatusActive     BatchStatus = "ACTIVE"
	BatchStatusQuarantine BatchStatus = "QUARANTINE"
	BatchStatusExpired    BatchStatus = "EXPIRED"
	BatchStatusRecalled   BatchStatus = "RECALLED"
	BatchStatusDepleted   BatchStatus = "DEPLETED"
)

// StockBatch is one received lot of one drug from one supplier. Batches are
// the authoritative record of physical stock; drug-level quantities are a
// derived cache recomputed from ACTIVE batches.
type StockBatch struct {
	ID              string `db:"id" json:"id"`
	InternalBatchID string `db:"internal_batch_id" json:"internal_batch_id"`
	BatchNumber     string `db:"batch_number" json:"batch_number"`

	DrugID     string `db:"drug_id" json:"drug_id"`
	SupplierID string `db:"supplier_id" json:"supplier_id"`
	PharmacyID string `db:"pharmacy_id" json:"pharmacy_id"`

	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	NoExpiry        bool       `db:"no_expiry" json:"no_expiry"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufacture_date,omitempty"`
	ReceivedDate    time.Time  `db:"received_date" json:"received_date"`

	QuantityReceived  int `db:"quantity_received" json:"quantity_received"`
	QuantityAvailable int `db:"quantity_available" json:"quantity_available"`
	QuantityReserved  int `db:"quantity_reserved" json:"quantity_reserved"`
	QuantitySold      int `db:"quantity_sold" json:"quantity_sold"`
	QuantityDamaged   int `db:"quantity_damaged" json:"quantity_damaged"`
	QuantityReturned  int `db:"quantity_returned" json:"quantity_returned"`

	CostPrice            decimal.Decimal     `db:"cost_price" json:"cost_price"`
	SellingPriceOverride decimal.NullDecimal `db:"selling_price_override" json:"selling_price_override,omitempty"`
	// TotalCost is fixed at receipt (quantity_received x cost_price) and is
	// not recomputed by later adjustments.
	TotalCost decimal.Decimal `db:"total_cost" json:"total_cost"`

	Status          BatchStatus `db:"status" json:"status"`
	StatusReason    *string     `db:"status_reason" json:"status_reason,omitempty"`
	StatusChangedAt *time.Time  `db:"status_changed_at" json:"status_changed_at,omitempty"`
	StatusChangedBy *string     `db:"status_changed_by" json:"status_changed_by,omitempty"`

	RecallNumber *string    `db:"recall_number" json:"recall_number,omitempty"`
	RecallDate   *time.Time `db:"recall_date" json:"recall_date,omitempty"`
	RecallReason *string    `db:"recall_reason" json:"recall_reason,omitempty"`
	RecallClass  *string    `db:"recall_class" json:"recall_class,omitempty"`

	Notes *string `db:"notes" json:"notes,omitempty"`

	// Version backs the optimistic concurrency check on quantity updates
	Version   int       `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveAvailable is the true allocatable pool: available stock minus
// stock held by reservations.
func (b *StockBatch) EffectiveAvailable() int {
	eff := b.QuantityAvailable - b.QuantityReserved
	if eff < 0 {
		return 0
	}
	return eff
}

// IsExpired returns true if the batch carries an expiry date in the past
func (b *StockBatch) IsExpired(now time.Time) bool {
	if b.NoExpiry || b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(now)
}

// DaysUntilExpiry returns whole days until expiry (negative when past),
// and false when the batch has perpetual shelf life.
func (b *StockBatch) DaysUntilExpiry(now time.Time) (int, bool) {
	if b.NoExpiry || b.ExpiryDate == nil {
		return 0, false
	}
	return int(b.ExpiryDate.Sub(now).Hours() / 24), true
}

// SetStatus records a status transition with its reason and actor
func (b *StockBatch) SetStatus(status BatchStatus, reason string, by string, at time.Time) {
	b.Status = status
	if reason != "" {
		b.StatusReason = &reason
	} else {
		b.StatusReason = nil
	}
	b.StatusChangedAt = &at
	if by != "" {
		b.StatusChangedBy = &by
	}
}

// UnitSellingPrice returns the batch override when set, the fallback otherwise
func (b *StockBatch) UnitSellingPrice(fallback decimal.Decimal) decimal.Decimal {
	if b.SellingPriceOverride.Valid {
		return b.SellingPriceOverride.Decimal
	}
	return fallback
}
