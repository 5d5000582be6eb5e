package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Stock lifecycle events
	EventBatchReceived      = "stock.batch.received"
	EventStockDispensed     = "stock.dispensed"
	EventStockAdjusted      = "stock.adjusted"
	EventStockReturned      = "stock.returned"
	EventStockWrittenOff    = "stock.written_off"
	EventBatchRecalled      = "stock.batch.recalled"
	EventBatchStatusChanged = "stock.batch.status_changed"

	// Reservation events
	EventReservationCreated  = "stock.reservation.created"
	EventReservationReleased = "stock.reservation.released"
	EventReservationExpired  = "stock.reservation.expired"

	// Supplier events (consumed from the supplier module)
	EventSupplierCreated = "supplier.created"
	EventSupplierUpdated = "supplier.updated"
	EventSupplierDeleted = "supplier.deleted"
)

// Exchange names
const (
	ExchangeStockEvents    = "stock.events"
	ExchangeSupplierEvents = "supplier.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock Events

// BatchReceivedEvent is published when a new batch is received into stock
type BatchReceivedEvent struct {
	BatchID         string `json:"batch_id"`
	InternalBatchID string `json:"internal_batch_id"`
	DrugID          string `json:"drug_id"`
	SupplierID      string `json:"supplier_id"`
	Quantity        int    `json:"quantity"`
	ExpiryDate      string `json:"expiry_date,omitempty"`
	NoExpiry        bool   `json:"no_expiry"`
}

// StockDispensedEvent is published after a dispense completes
type StockDispensedEvent struct {
	DrugID          string         `json:"drug_id"`
	Quantity        int            `json:"quantity"`
	BatchQuantities map[string]int `json:"batch_quantities"`
	ReferenceType   *string        `json:"reference_type,omitempty"`
	ReferenceID     *string        `json:"reference_id,omitempty"`
	PerformedBy     string         `json:"performed_by,omitempty"`
}

// StockAdjustedEvent is published after a manual stock adjustment
type StockAdjustedEvent struct {
	BatchID     string `json:"batch_id"`
	DrugID      string `json:"drug_id"`
	Adjustment  int    `json:"adjustment"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// StockReturnedEvent is published after stock goes back to its supplier
type StockReturnedEvent struct {
	BatchID     string `json:"batch_id"`
	DrugID      string `json:"drug_id"`
	SupplierID  string `json:"supplier_id"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// StockWrittenOffEvent is published after expired or damaged stock is destroyed
type StockWrittenOffEvent struct {
	BatchID     string `json:"batch_id"`
	DrugID      string `json:"drug_id"`
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	PerformedBy string `json:"performed_by,omitempty"`
}

// BatchRecalledEvent is published when a batch is recalled, partially or fully
type BatchRecalledEvent struct {
	BatchID      string `json:"batch_id"`
	DrugID       string `json:"drug_id"`
	Quantity     int    `json:"quantity"`
	RecallNumber string `json:"recall_number"`
	FullRecall   bool   `json:"full_recall"`
}

// BatchStatusChangedEvent is published when a batch transitions status
type BatchStatusChangedEvent struct {
	BatchID   string `json:"batch_id"`
	DrugID    string `json:"drug_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
}

// ReservationEvent covers reservation creation, release and expiry
type ReservationEvent struct {
	OrderReference  string         `json:"order_reference"`
	DrugID          string         `json:"drug_id,omitempty"`
	Quantity        int            `json:"quantity"`
	BatchQuantities map[string]int `json:"batch_quantities,omitempty"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
}

// Supplier Events (consumed)

// SupplierUpsertedEvent mirrors the supplier module's created/updated payload
type SupplierUpsertedEvent struct {
	SupplierID    string     `json:"supplier_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	OrdersCount   int        `json:"orders_count"`
	LastOrderDate *time.Time `json:"last_order_date,omitempty"`
}

// SupplierDeletedEvent is published when a supplier is removed
type SupplierDeletedEvent struct {
	SupplierID string `json:"supplier_id"`
}
