package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/events"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
)

// WriteOffType classifies a write-off
type WriteOffType string

const (
	WriteOffExpired WriteOffType = "expired"
	WriteOffDamaged WriteOffType = "damaged"
)

// AdjustmentType classifies a manual stock adjustment
type AdjustmentType string

const (
	AdjustmentAdd      AdjustmentType = "add"
	AdjustmentSubtract AdjustmentType = "subtract"
)

// StockService implements the batch lifecycle operations. Every mutation
// commits the batch update and its ledger entry in one DB transaction; the
// drug aggregate sync that follows is best-effort and never transactional
// with the mutation.
type StockService struct {
	batches    BatchStore
	ledger     LedgerStore
	drugs      DrugStore
	suppliers  SupplierStore
	publisher  *events.StockEventPublisher
	logger     *logger.Logger
	maxRetries int
	now        func() time.Time
}

// NewStockService creates a new stock service
func NewStockService(batches BatchStore, ledger LedgerStore, drugs DrugStore, suppliers SupplierStore, publisher *events.StockEventPublisher, log *logger.Logger, maxRetries int) *StockService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &StockService{
		batches:    batches,
		ledger:     ledger,
		drugs:      drugs,
		suppliers:  suppliers,
		publisher:  publisher,
		logger:     log.WithComponent("stock_service"),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func (s *StockService) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return retryConflict(ctx, s.maxRetries, s.logger, op)
}

// retryConflict re-runs op while it loses the optimistic version check, up
// to the given bound. op must re-read the batch on every attempt so the
// retry sees the winner's state.
func retryConflict(ctx context.Context, maxRetries int, log *logger.Logger, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = op(ctx)
		if err == nil || !errors.Is(err, errors.ErrConflict) {
			return err
		}
		log.Debug().Int("attempt", attempt).Msg("optimistic lock conflict, retrying")
	}
	return err
}

// ReceiveInput describes a new shipment
type ReceiveInput struct {
	DrugID      string
	SupplierID  string
	PharmacyID  string
	BatchNumber string

	Quantity  int
	CostPrice decimal.Decimal

	ExpiryDate      *time.Time
	NoExpiry        bool
	ManufactureDate *time.Time
	ReceivedDate    *time.Time

	SellingPriceOverride decimal.NullDecimal
	Notes                *string
	Reference            domain.Reference
	PerformedBy          *string
}

// Receive creates a batch for a new shipment and appends its RECEIVED ledger
// entry. Receiving is gated on the cached supplier being active.
func (s *StockService) Receive(ctx context.Context, in ReceiveInput) (*domain.StockBatch, error) {
	if in.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if in.CostPrice.IsNegative() {
		return nil, errors.Validation(map[string]string{"cost_price": "must not be negative"})
	}
	if !in.NoExpiry && in.ExpiryDate == nil {
		return nil, errors.Validation(map[string]string{"expiry_date": "required unless no_expiry is set"})
	}
	if in.NoExpiry {
		in.ExpiryDate = nil
	}

	if _, err := s.drugs.GetByID(ctx, in.DrugID); err != nil {
		return nil, err
	}

	supplier, err := s.suppliers.GetByID(ctx, in.SupplierID)
	if err != nil {
		return nil, err
	}
	if !supplier.IsActive() {
		return nil, errors.InvalidState(fmt.Sprintf("supplier %s is %s and cannot receive stock", supplier.Name, supplier.Status))
	}

	now := s.now()
	receivedDate := now
	if in.ReceivedDate != nil {
		receivedDate = *in.ReceivedDate
	}

	batch := &domain.StockBatch{
		BatchNumber:          in.BatchNumber,
		DrugID:               in.DrugID,
		SupplierID:           in.SupplierID,
		PharmacyID:           in.PharmacyID,
		ExpiryDate:           in.ExpiryDate,
		NoExpiry:             in.NoExpiry,
		ManufactureDate:      in.ManufactureDate,
		ReceivedDate:         receivedDate,
		QuantityReceived:     in.Quantity,
		QuantityAvailable:    in.Quantity,
		CostPrice:            in.CostPrice,
		SellingPriceOverride: in.SellingPriceOverride,
		TotalCost:            in.CostPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Status:               domain.BatchStatusActive,
		Notes:                in.Notes,
	}

	txn := &domain.StockTransaction{
		DrugID:          in.DrugID,
		SupplierID:      &in.SupplierID,
		Type:            domain.TxnReceived,
		Quantity:        in.Quantity,
		QuantityBefore:  0,
		QuantityAfter:   in.Quantity,
		UnitCost:        decimal.NewNullDecimal(in.CostPrice),
		TotalValue:      decimal.NewNullDecimal(batch.TotalCost),
		ReferenceType:   in.Reference.Type,
		ReferenceID:     in.Reference.ID,
		ReferenceNumber: in.Reference.Number,
		PerformedBy:     in.PerformedBy,
	}

	if err := s.batches.Create(ctx, batch, txn); err != nil {
		return nil, err
	}

	if err := s.suppliers.RecordOrder(ctx, in.SupplierID, now); err != nil {
		s.logger.Warn().Err(err).Str("supplier_id", in.SupplierID).Msg("failed to record supplier order")
	}

	s.syncAfterMutation(ctx, in.DrugID)
	s.publisher.PublishBatchReceived(ctx, batch)

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("internal_batch_id", batch.InternalBatchID).
		Str("drug_id", batch.DrugID).
		Int("quantity", in.Quantity).
		Msg("batch received")

	return batch, nil
}

// DispenseInput describes a dispense request. BatchID pins the dispense to a
// named batch; when empty the allocation engine plans across batches.
type DispenseInput struct {
	DrugID   string
	Quantity int
	BatchID  string

	UnitPrice   decimal.NullDecimal
	Reference   domain.Reference
	CustomerID  *string
	PerformedBy *string
}

// DispenseResult reports what was consumed from which batches
type DispenseResult struct {
	DrugID          string                     `json:"drug_id"`
	Quantity        int                        `json:"quantity"`
	BatchQuantities map[string]int             `json:"batch_quantities"`
	Transactions    []*domain.StockTransaction `json:"transactions"`
}

// Dispense removes stock, either from one named batch or FEFO-planned across
// batches. A planned dispense is all-or-nothing: if the plan cannot be
// fulfilled, or any batch update loses its version check past the retry
// bound, no batch changes.
func (s *StockService) Dispense(ctx context.Context, in DispenseInput) (*DispenseResult, error) {
	if in.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}

	drug, err := s.drugs.GetByID(ctx, in.DrugID)
	if err != nil {
		return nil, err
	}

	result := &DispenseResult{DrugID: in.DrugID, Quantity: in.Quantity}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		var muts []domain.BatchMutation
		if in.BatchID != "" {
			mut, err := s.planNamedDispense(ctx, drug, in)
			if err != nil {
				return err
			}
			muts = []domain.BatchMutation{mut}
		} else {
			muts, err = s.planFEFODispense(ctx, drug, in)
			if err != nil {
				return err
			}
		}

		if err := s.batches.Apply(ctx, muts); err != nil {
			return err
		}

		result.BatchQuantities = make(map[string]int, len(muts))
		result.Transactions = result.Transactions[:0]
		for _, m := range muts {
			result.BatchQuantities[m.Batch.ID] = -m.Txn.Quantity
			result.Transactions = append(result.Transactions, m.Txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, in.DrugID)
	s.publisher.PublishStockDispensed(ctx, in.DrugID, in.Quantity, result.BatchQuantities, in.Reference, deref(in.PerformedBy))

	s.logger.Info().
		Str("drug_id", in.DrugID).
		Int("quantity", in.Quantity).
		Int("batches", len(result.BatchQuantities)).
		Msg("stock dispensed")

	return result, nil
}

func (s *StockService) planNamedDispense(ctx context.Context, drug *domain.Drug, in DispenseInput) (domain.BatchMutation, error) {
	batch, err := s.batches.GetByID(ctx, in.BatchID)
	if err != nil {
		return domain.BatchMutation{}, err
	}
	if batch.DrugID != in.DrugID {
		return domain.BatchMutation{}, errors.BadRequest("batch does not belong to the requested drug")
	}
	if batch.Status != domain.BatchStatusActive {
		return domain.BatchMutation{}, errors.InvalidState(fmt.Sprintf("batch %s is %s, only ACTIVE batches can be dispensed", batch.InternalBatchID, batch.Status))
	}
	if in.Quantity > batch.QuantityAvailable {
		return domain.BatchMutation{}, errors.InsufficientStock(in.Quantity, batch.QuantityAvailable)
	}
	return s.dispenseMutation(drug, batch, in, in.Quantity), nil
}

func (s *StockService) planFEFODispense(ctx context.Context, drug *domain.Drug, in DispenseInput) ([]domain.BatchMutation, error) {
	candidates, err := s.batches.ListActiveByDrug(ctx, in.DrugID)
	if err != nil {
		return nil, err
	}

	plan := PlanAllocation(in.DrugID, candidates, in.Quantity)
	if !plan.CanFulfill {
		return nil, errors.InsufficientStock(in.Quantity, plan.TotalAvailable)
	}

	muts := make([]domain.BatchMutation, 0, len(plan.Selections))
	for _, sel := range plan.Selections {
		muts = append(muts, s.dispenseMutation(drug, sel.Batch, in, sel.Quantity))
	}
	return muts, nil
}

func (s *StockService) dispenseMutation(drug *domain.Drug, batch *domain.StockBatch, in DispenseInput, take int) domain.BatchMutation {
	before := batch.QuantityAvailable
	batch.QuantityAvailable -= take
	batch.QuantitySold += take
	if batch.QuantityAvailable == 0 {
		batch.SetStatus(domain.BatchStatusDepleted, "stock exhausted by dispense", deref(in.PerformedBy), s.now())
	}

	unitPrice := in.UnitPrice
	if !unitPrice.Valid {
		unitPrice = decimal.NewNullDecimal(batch.UnitSellingPrice(drug.Price))
	}

	txn := &domain.StockTransaction{
		DrugID:          batch.DrugID,
		BatchID:         batch.ID,
		CustomerID:      in.CustomerID,
		Type:            domain.TxnSold,
		Quantity:        -take,
		QuantityBefore:  before,
		QuantityAfter:   batch.QuantityAvailable,
		UnitCost:        decimal.NewNullDecimal(batch.CostPrice),
		UnitPrice:       unitPrice,
		TotalValue:      decimal.NewNullDecimal(unitPrice.Decimal.Mul(decimal.NewFromInt(int64(take)))),
		ReferenceType:   in.Reference.Type,
		ReferenceID:     in.Reference.ID,
		ReferenceNumber: in.Reference.Number,
		PerformedBy:     in.PerformedBy,
	}
	return domain.BatchMutation{Batch: batch, Txn: txn}
}

// AdjustInput describes a manual quantity correction
type AdjustInput struct {
	BatchID     string
	Type        AdjustmentType
	Quantity    int
	Reason      string
	Notes       *string
	PerformedBy *string
}

// AdjustStock applies a manual add or subtract correction to one batch. The
// reason is mandatory. Adding stock to a DEPLETED batch reopens it.
func (s *StockService) AdjustStock(ctx context.Context, in AdjustInput) (*domain.StockBatch, error) {
	if in.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if in.Reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "required"})
	}
	if in.Type != AdjustmentAdd && in.Type != AdjustmentSubtract {
		return nil, errors.Validation(map[string]string{"type": "must be add or subtract"})
	}

	var batch *domain.StockBatch
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, in.BatchID)
		if err != nil {
			return err
		}

		before := batch.QuantityAvailable
		txnType := domain.TxnAdjustmentAdd
		delta := in.Quantity

		switch in.Type {
		case AdjustmentAdd:
			batch.QuantityAvailable += in.Quantity
			batch.QuantityReceived += in.Quantity
			if batch.Status == domain.BatchStatusDepleted {
				batch.SetStatus(domain.BatchStatusActive, "reopened by stock adjustment", deref(in.PerformedBy), s.now())
			}
		case AdjustmentSubtract:
			if in.Quantity > batch.QuantityAvailable {
				return errors.InsufficientStock(in.Quantity, batch.QuantityAvailable)
			}
			batch.QuantityAvailable -= in.Quantity
			txnType = domain.TxnAdjustmentSubtract
			delta = -in.Quantity
			if batch.QuantityAvailable == 0 {
				batch.SetStatus(domain.BatchStatusDepleted, "stock exhausted by adjustment", deref(in.PerformedBy), s.now())
			}
		}

		txn := &domain.StockTransaction{
			DrugID:         batch.DrugID,
			BatchID:        batch.ID,
			Type:           txnType,
			Quantity:       delta,
			QuantityBefore: before,
			QuantityAfter:  batch.QuantityAvailable,
			UnitCost:       decimal.NewNullDecimal(batch.CostPrice),
			Reason:         &in.Reason,
			Notes:          in.Notes,
			PerformedBy:    in.PerformedBy,
		}
		return s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch, Txn: txn}})
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	adjustment := in.Quantity
	if in.Type == AdjustmentSubtract {
		adjustment = -in.Quantity
	}
	s.publisher.PublishStockAdjusted(ctx, batch, adjustment, in.Reason, deref(in.PerformedBy))

	return batch, nil
}

// ReturnInput describes a return of stock to its supplier
type ReturnInput struct {
	BatchID     string
	Quantity    int
	Reason      string
	RefundRef   domain.Reference
	Notes       *string
	PerformedBy *string
}

// ReturnToSupplier sends stock back to the supplier it came from, carrying
// the refund reference on the ledger entry.
func (s *StockService) ReturnToSupplier(ctx context.Context, in ReturnInput) (*domain.StockBatch, error) {
	if in.Quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if in.Reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "required"})
	}

	var batch *domain.StockBatch
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if in.Quantity > batch.QuantityAvailable {
			return errors.InsufficientStock(in.Quantity, batch.QuantityAvailable)
		}

		before := batch.QuantityAvailable
		batch.QuantityAvailable -= in.Quantity
		batch.QuantityReturned += in.Quantity
		if batch.QuantityAvailable == 0 && batch.Status == domain.BatchStatusActive {
			batch.SetStatus(domain.BatchStatusDepleted, "stock exhausted by supplier return", deref(in.PerformedBy), s.now())
		}

		txn := &domain.StockTransaction{
			DrugID:          batch.DrugID,
			BatchID:         batch.ID,
			SupplierID:      &batch.SupplierID,
			Type:            domain.TxnReturnToSupplier,
			Quantity:        -in.Quantity,
			QuantityBefore:  before,
			QuantityAfter:   batch.QuantityAvailable,
			UnitCost:        decimal.NewNullDecimal(batch.CostPrice),
			TotalValue:      decimal.NewNullDecimal(batch.CostPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))),
			ReferenceType:   in.RefundRef.Type,
			ReferenceID:     in.RefundRef.ID,
			ReferenceNumber: in.RefundRef.Number,
			Reason:          &in.Reason,
			Notes:           in.Notes,
			PerformedBy:     in.PerformedBy,
		}
		return s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch, Txn: txn}})
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	s.publisher.PublishStockReturned(ctx, batch, in.Quantity, in.Reason, deref(in.PerformedBy))
	return batch, nil
}

// WriteOffInput describes destruction of unsaleable stock. Quantity zero
// means the whole remaining availability.
type WriteOffInput struct {
	BatchID     string
	Type        WriteOffType
	Quantity    int
	Reason      string
	PerformedBy *string
}

// WriteOff destroys expired or damaged stock. An expired write-off that
// zeroes the batch marks it EXPIRED; a partial one leaves the status alone.
func (s *StockService) WriteOff(ctx context.Context, in WriteOffInput) (*domain.StockBatch, error) {
	if in.Type != WriteOffExpired && in.Type != WriteOffDamaged {
		return nil, errors.Validation(map[string]string{"type": "must be expired or damaged"})
	}
	if in.Quantity < 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must not be negative"})
	}

	var batch *domain.StockBatch
	var writtenOff int
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, in.BatchID)
		if err != nil {
			return err
		}

		quantity := in.Quantity
		if quantity == 0 {
			quantity = batch.QuantityAvailable
		}
		if quantity == 0 {
			return errors.InvalidState("batch has no stock to write off")
		}
		if quantity > batch.QuantityAvailable {
			return errors.InsufficientStock(quantity, batch.QuantityAvailable)
		}

		before := batch.QuantityAvailable
		batch.QuantityAvailable -= quantity
		writtenOff = quantity

		txnType := domain.TxnExpired
		if in.Type == WriteOffDamaged {
			txnType = domain.TxnDamaged
			batch.QuantityDamaged += quantity
		}

		if batch.QuantityAvailable == 0 {
			if in.Type == WriteOffExpired {
				batch.SetStatus(domain.BatchStatusExpired, in.Reason, deref(in.PerformedBy), s.now())
			} else {
				batch.SetStatus(domain.BatchStatusDepleted, "stock exhausted by damage write-off", deref(in.PerformedBy), s.now())
			}
		}

		txn := &domain.StockTransaction{
			DrugID:         batch.DrugID,
			BatchID:        batch.ID,
			Type:           txnType,
			Quantity:       -quantity,
			QuantityBefore: before,
			QuantityAfter:  batch.QuantityAvailable,
			UnitCost:       decimal.NewNullDecimal(batch.CostPrice),
			TotalValue:     decimal.NewNullDecimal(batch.CostPrice.Mul(decimal.NewFromInt(int64(quantity)))),
			Reason:         optional(in.Reason),
			PerformedBy:    in.PerformedBy,
		}
		return s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch, Txn: txn}})
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	s.publisher.PublishStockWrittenOff(ctx, batch, string(in.Type), writtenOff, in.Reason, deref(in.PerformedBy))
	return batch, nil
}

// RecallInput describes a supplier or regulator recall. Quantity zero means
// the whole remaining availability (a full recall).
type RecallInput struct {
	BatchID      string
	Quantity     int
	RecallNumber string
	RecallReason string
	RecallClass  *string
	PerformedBy  *string
}

// Recall pulls stock under a recall notice. Only a recall that consumes
// everything left flips the batch to RECALLED and records the recall
// metadata; a partial recall leaves the batch ACTIVE and saleable.
func (s *StockService) Recall(ctx context.Context, in RecallInput) (*domain.StockBatch, error) {
	if in.RecallNumber == "" {
		return nil, errors.Validation(map[string]string{"recall_number": "required"})
	}
	if in.Quantity < 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must not be negative"})
	}

	var batch *domain.StockBatch
	var fullRecall bool
	var recalled int
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, in.BatchID)
		if err != nil {
			return err
		}

		quantity := in.Quantity
		if quantity == 0 {
			quantity = batch.QuantityAvailable
		}
		if quantity == 0 {
			return errors.InvalidState("batch has no stock to recall")
		}
		if quantity > batch.QuantityAvailable {
			return errors.InsufficientStock(quantity, batch.QuantityAvailable)
		}

		before := batch.QuantityAvailable
		batch.QuantityAvailable -= quantity
		recalled = quantity

		fullRecall = batch.QuantityAvailable == 0
		if fullRecall {
			now := s.now()
			batch.SetStatus(domain.BatchStatusRecalled, in.RecallReason, deref(in.PerformedBy), now)
			batch.RecallNumber = &in.RecallNumber
			batch.RecallDate = &now
			batch.RecallReason = &in.RecallReason
			batch.RecallClass = in.RecallClass
		}

		txn := &domain.StockTransaction{
			DrugID:          batch.DrugID,
			BatchID:         batch.ID,
			SupplierID:      &batch.SupplierID,
			Type:            domain.TxnRecalled,
			Quantity:        -quantity,
			QuantityBefore:  before,
			QuantityAfter:   batch.QuantityAvailable,
			UnitCost:        decimal.NewNullDecimal(batch.CostPrice),
			ReferenceNumber: &in.RecallNumber,
			Reason:          optional(in.RecallReason),
			PerformedBy:     in.PerformedBy,
		}
		return s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch, Txn: txn}})
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	s.publisher.PublishBatchRecalled(ctx, batch, recalled, in.RecallNumber, fullRecall)

	return batch, nil
}

// Quarantine moves an ACTIVE batch out of the allocatable pool without
// touching quantities. No ledger entry is written for a status-only change.
func (s *StockService) Quarantine(ctx context.Context, batchID, reason string, performedBy *string) (*domain.StockBatch, error) {
	if reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "required"})
	}

	var batch *domain.StockBatch
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusActive {
			return errors.InvalidState(fmt.Sprintf("only ACTIVE batches can be quarantined, batch %s is %s", batch.InternalBatchID, batch.Status))
		}

		oldStatus := batch.Status
		batch.SetStatus(domain.BatchStatusQuarantine, reason, deref(performedBy), s.now())
		if err := s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch}}); err != nil {
			return err
		}
		s.publisher.PublishBatchStatusChanged(ctx, batch, oldStatus, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	return batch, nil
}

// ReleaseQuarantine returns a quarantined batch to circulation: ACTIVE when
// it still holds stock, DEPLETED otherwise.
func (s *StockService) ReleaseQuarantine(ctx context.Context, batchID, reason string, performedBy *string) (*domain.StockBatch, error) {
	var batch *domain.StockBatch
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.batches.GetByID(ctx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != domain.BatchStatusQuarantine {
			return errors.InvalidState(fmt.Sprintf("batch %s is %s, not in quarantine", batch.InternalBatchID, batch.Status))
		}

		oldStatus := batch.Status
		target := domain.BatchStatusActive
		if batch.QuantityAvailable == 0 {
			target = domain.BatchStatusDepleted
		}
		batch.SetStatus(target, reason, deref(performedBy), s.now())
		if err := s.batches.Apply(ctx, []domain.BatchMutation{{Batch: batch}}); err != nil {
			return err
		}
		s.publisher.PublishBatchStatusChanged(ctx, batch, oldStatus, reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncAfterMutation(ctx, batch.DrugID)
	return batch, nil
}

// CheckAvailability previews a FEFO plan without mutating anything
func (s *StockService) CheckAvailability(ctx context.Context, drugID string, quantity int) (*AllocationPlan, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if _, err := s.drugs.GetByID(ctx, drugID); err != nil {
		return nil, err
	}

	candidates, err := s.batches.ListActiveByDrug(ctx, drugID)
	if err != nil {
		return nil, err
	}
	plan := PlanAllocation(drugID, candidates, quantity)
	return &plan, nil
}

// GetBatch returns one batch by ID
func (s *StockService) GetBatch(ctx context.Context, id string) (*domain.StockBatch, error) {
	return s.batches.GetByID(ctx, id)
}

// ListBatches lists batches, optionally scoped to one drug
func (s *StockService) ListBatches(ctx context.Context, drugID string) ([]*domain.StockBatch, error) {
	if drugID != "" {
		return s.batches.ListByDrug(ctx, drugID)
	}
	return s.batches.ListAll(ctx)
}

// GetTransaction returns one ledger entry by its TXN number
func (s *StockService) GetTransaction(ctx context.Context, transactionID string) (*domain.StockTransaction, error) {
	return s.ledger.GetByTransactionID(ctx, transactionID)
}

// ListBatchTransactions lists a batch's ledger in append order
func (s *StockService) ListBatchTransactions(ctx context.Context, batchID string) ([]*domain.StockTransaction, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.ledger.ListByBatch(ctx, batchID)
}

// ListDrugTransactions lists a drug's ledger entries across all of its
// batches inside the window. An empty window covers the last 30 days.
func (s *StockService) ListDrugTransactions(ctx context.Context, drugID string, from, to time.Time) ([]*domain.StockTransaction, error) {
	if _, err := s.drugs.GetByID(ctx, drugID); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !to.After(from) {
		return nil, errors.Validation(map[string]string{"to": "must be after from"})
	}
	return s.ledger.ListByDrug(ctx, drugID, from, to)
}

// SyncDrugQuantity recomputes the denormalized drug quantity from ACTIVE
// batches. Idempotent; safe to call after any mutation or on a schedule.
// Legacy products without batch tracking keep their direct quantity.
func (s *StockService) SyncDrugQuantity(ctx context.Context, drugID string) (int, error) {
	drug, err := s.drugs.GetByID(ctx, drugID)
	if err != nil {
		return 0, err
	}
	if !drug.HasBatches {
		return drug.Quantity, nil
	}

	batches, err := s.batches.ListByDrug(ctx, drugID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, b := range batches {
		if b.Status == domain.BatchStatusActive {
			total += b.QuantityAvailable
		}
	}

	if err := s.drugs.UpdateAggregate(ctx, drugID, total); err != nil {
		return 0, err
	}
	return total, nil
}

// syncAfterMutation is the best-effort aggregate refresh every lifecycle
// operation ends with. Failures are logged, never propagated: the batches
// stay authoritative and the next sync heals the cache.
func (s *StockService) syncAfterMutation(ctx context.Context, drugID string) {
	if _, err := s.SyncDrugQuantity(ctx, drugID); err != nil {
		s.logger.Warn().Err(err).Str("drug_id", drugID).Msg("drug aggregate sync failed")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
