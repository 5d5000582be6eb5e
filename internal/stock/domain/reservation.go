package domain

import "time"

// Reservation is a time-limited hold on batch quantity awaiting downstream
// consumption, typically a prescription pending fulfillment. The held
// quantity is counted in the batch's quantity_reserved and excluded from
// the pool offered to other allocations.
type Reservation struct {
	ID             string    `db:"id" json:"id"`
	BatchID        string    `db:"batch_id" json:"batch_id"`
	DrugID         string    `db:"drug_id" json:"drug_id"`
	OrderReference string    `db:"order_reference" json:"order_reference"`
	Quantity       int       `db:"quantity" json:"quantity"`
	ReservedAt     time.Time `db:"reserved_at" json:"reserved_at"`
	ExpiresAt      time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Expired reports whether the hold has outlived its TTL
func (r *Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
