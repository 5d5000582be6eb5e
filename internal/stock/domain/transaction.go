package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry
type TransactionType string

const (
	TxnReceived           TransactionType = "RECEIVED"
	TxnSold               TransactionType = "SOLD"
	TxnAdjustmentAdd      TransactionType = "ADJUSTMENT_ADD"
	TxnAdjustmentSubtract TransactionType = "ADJUSTMENT_SUBTRACT"
	TxnReturnToSupplier   TransactionType = "RETURN_TO_SUPPLIER"
	TxnReturnFromCustomer TransactionType = "RETURN_FROM_CUSTOMER"
	TxnExpired            TransactionType = "EXPIRED"
	TxnDamaged            TransactionType = "DAMAGED"
	TxnRecalled           TransactionType = "RECALLED"
	TxnTransferIn         TransactionType = "TRANSFER_IN"
	TxnTransferOut        TransactionType = "TRANSFER_OUT"
	TxnReserved           TransactionType = "RESERVED"
	TxnUnreserved         TransactionType = "UNRESERVED"
)

// StockTransaction is an append-only ledger row. Rows are never updated or
// deleted; the only post-write mutation permitted is flagging reversal
// linkage when a later compensating entry reverses this one.
type StockTransaction struct {
	ID            string `db:"id" json:"id"`
	TransactionID string `db:"transaction_id" json:"transaction_id"`

	DrugID     string  `db:"drug_id" json:"drug_id"`
	BatchID    string  `db:"batch_id" json:"batch_id"`
	SupplierID *string `db:"supplier_id" json:"supplier_id,omitempty"`
	CustomerID *string `db:"customer_id" json:"customer_id,omitempty"`

	Type TransactionType `db:"type" json:"type"`

	// Quantity is signed: positive increases availability, negative decreases.
	// QuantityAfter must always equal QuantityBefore + Quantity.
	Quantity       int `db:"quantity" json:"quantity"`
	QuantityBefore int `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int `db:"quantity_after" json:"quantity_after"`

	UnitCost   decimal.NullDecimal `db:"unit_cost" json:"unit_cost,omitempty"`
	UnitPrice  decimal.NullDecimal `db:"unit_price" json:"unit_price,omitempty"`
	TotalValue decimal.NullDecimal `db:"total_value" json:"total_value,omitempty"`

	ReferenceType   *string `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *string `db:"reference_id" json:"reference_id,omitempty"`
	ReferenceNumber *string `db:"reference_number" json:"reference_number,omitempty"`

	Reason *string `db:"reason" json:"reason,omitempty"`
	Notes  *string `db:"notes" json:"notes,omitempty"`

	IsReversal            bool    `db:"is_reversal" json:"is_reversal"`
	ReversesTransaction   *string `db:"reverses_transaction" json:"reverses_transaction,omitempty"`
	ReversedByTransaction *string `db:"reversed_by_transaction" json:"reversed_by_transaction,omitempty"`
	IsReversed            bool    `db:"is_reversed" json:"is_reversed"`

	PerformedBy *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Consistent reports whether the before/after/delta triple is coherent
func (t *StockTransaction) Consistent() bool {
	return t.QuantityAfter == t.QuantityBefore+t.Quantity
}

// Reference identifies the external document that caused a mutation
type Reference struct {
	Type   *string `json:"type,omitempty"`
	ID     *string `json:"id,omitempty"`
	Number *string `json:"number,omitempty"`
}
