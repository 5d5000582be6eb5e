package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Drug is the product record as the stock engine sees it. The Quantity and
// IsAvailable fields are a denormalized cache over ACTIVE batches, refreshed
// by the drug aggregate sync; the batches remain authoritative.
type Drug struct {
	ID       string          `db:"id" json:"id"`
	Name     string          `db:"name" json:"name"`
	Category string          `db:"category" json:"category"`
	Price    decimal.Decimal `db:"price" json:"price"`

	Quantity    int  `db:"quantity" json:"quantity"`
	IsAvailable bool `db:"is_available" json:"is_available"`

	// HasBatches is false for legacy products migrated before batch tracking
	// existed; their Quantity is direct stock, not derived from batches.
	HasBatches bool `db:"has_batches" json:"has_batches"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SupplierStatus values mirrored from the supplier module
const (
	SupplierStatusActive    = "active"
	SupplierStatusSuspended = "suspended"
	SupplierStatusInactive  = "inactive"
)

// Supplier is the locally cached view of a supplier, maintained from
// supplier module events. Receiving is gated on this cache.
type Supplier struct {
	ID            string     `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Status        string     `db:"status" json:"status"`
	OrdersCount   int        `db:"orders_count" json:"orders_count"`
	LastOrderDate *time.Time `db:"last_order_date" json:"last_order_date,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsActive reports whether the supplier may receive new purchase orders
func (s *Supplier) IsActive() bool {
	return s.Status == SupplierStatusActive
}
