package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/internal/stock/events"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// ReservationService manages time-limited holds on batch stock. A hold
// raises quantity_reserved without touching quantity_available; the
// allocation engine plans against the effective pool, so held stock is
// invisible to other reservations and dispenses until released or expired.
type ReservationService struct {
	batches      BatchStore
	reservations ReservationStore
	drugs        DrugStore
	publisher    *events.StockEventPublisher
	logger       *logger.Logger
	ttl          time.Duration
	maxRetries   int
	now          func() time.Time
}

// NewReservationService creates a new reservation service
func NewReservationService(batches BatchStore, reservations ReservationStore, drugs DrugStore, publisher *events.StockEventPublisher, log *logger.Logger, ttl time.Duration, maxRetries int) *ReservationService {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &ReservationService{
		batches:      batches,
		reservations: reservations,
		drugs:        drugs,
		publisher:    publisher,
		logger:       log.WithComponent("reservation_service"),
		ttl:          ttl,
		maxRetries:   maxRetries,
		now:          time.Now,
	}
}

// ReserveResult reports the holds taken for an order
type ReserveResult struct {
	OrderReference string                `json:"order_reference"`
	DrugID         string                `json:"drug_id"`
	Quantity       int                   `json:"quantity"`
	Holds          []*domain.Reservation `json:"holds"`
	ExpiresAt      time.Time             `json:"expires_at"`
}

// Reserve takes FEFO-planned holds for an order. All-or-nothing: when the
// effective pool cannot cover the request, nothing is held. Each held batch
// gains a RESERVED audit entry; reservations move no stock, so the entry
// carries a zero quantity delta and the hold size rides in the notes.
func (s *ReservationService) Reserve(ctx context.Context, drugID string, quantity int, orderReference string, ttl time.Duration) (*ReserveResult, error) {
	if quantity <= 0 {
		return nil, errors.Validation(map[string]string{"quantity": "must be positive"})
	}
	if orderReference == "" {
		return nil, errors.Validation(map[string]string{"order_reference": "required"})
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	if _, err := s.drugs.GetByID(ctx, drugID); err != nil {
		return nil, err
	}

	existing, err := s.reservations.ListByOrder(ctx, orderReference)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Conflict("order reference already holds a reservation")
	}

	var result *ReserveResult
	err = retryConflict(ctx, s.maxRetries, s.logger, func(ctx context.Context) error {
		candidates, err := s.batches.ListActiveByDrug(ctx, drugID)
		if err != nil {
			return err
		}

		plan := PlanAllocation(drugID, candidates, quantity)
		if !plan.CanFulfill {
			return errors.InsufficientStock(quantity, plan.TotalAvailable)
		}

		now := s.now()
		expiresAt := now.Add(ttl)
		holds := make([]*domain.Reservation, 0, len(plan.Selections))
		muts := make([]domain.BatchMutation, 0, len(plan.Selections))

		for _, sel := range plan.Selections {
			batch := sel.Batch
			batch.QuantityReserved += sel.Quantity

			holds = append(holds, &domain.Reservation{
				BatchID:        batch.ID,
				DrugID:         drugID,
				OrderReference: orderReference,
				Quantity:       sel.Quantity,
				ReservedAt:     now,
				ExpiresAt:      expiresAt,
			})
			muts = append(muts, domain.BatchMutation{
				Batch: batch,
				Txn:   s.holdAudit(batch, domain.TxnReserved, sel.Quantity, orderReference),
			})
		}

		if err := s.reservations.Create(ctx, holds, muts); err != nil {
			return err
		}

		result = &ReserveResult{
			OrderReference: orderReference,
			DrugID:         drugID,
			Quantity:       quantity,
			Holds:          holds,
			ExpiresAt:      expiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batchQuantities := make(map[string]int, len(result.Holds))
	for _, h := range result.Holds {
		batchQuantities[h.BatchID] = h.Quantity
	}
	s.publisher.PublishReservation(ctx, messaging.EventReservationCreated, messaging.ReservationEvent{
		OrderReference:  orderReference,
		DrugID:          drugID,
		Quantity:        quantity,
		BatchQuantities: batchQuantities,
		ExpiresAt:       &result.ExpiresAt,
	})

	s.logger.Info().
		Str("order_reference", orderReference).
		Str("drug_id", drugID).
		Int("quantity", quantity).
		Int("batches", len(result.Holds)).
		Msg("stock reserved")

	return result, nil
}

// Release frees every hold taken under an order reference and returns the
// total quantity released. Releasing an order with no holds is a no-op.
func (s *ReservationService) Release(ctx context.Context, orderReference string) (int, error) {
	holds, err := s.reservations.ListByOrder(ctx, orderReference)
	if err != nil {
		return 0, err
	}
	if len(holds) == 0 {
		return 0, nil
	}

	released, err := s.releaseHolds(ctx, holds)
	if err != nil {
		return 0, err
	}

	s.publisher.PublishReservation(ctx, messaging.EventReservationReleased, messaging.ReservationEvent{
		OrderReference: orderReference,
		Quantity:       released,
	})

	s.logger.Info().
		Str("order_reference", orderReference).
		Int("quantity", released).
		Msg("reservation released")

	return released, nil
}

// ReleaseExpired frees every hold past its TTL. The sweeper calls this on a
// schedule so holds expire even when no release call ever arrives.
func (s *ReservationService) ReleaseExpired(ctx context.Context) (int, error) {
	holds, err := s.reservations.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if len(holds) == 0 {
		return 0, nil
	}

	byOrder := make(map[string]int)
	for _, h := range holds {
		byOrder[h.OrderReference] += h.Quantity
	}

	released, err := s.releaseHolds(ctx, holds)
	if err != nil {
		return 0, err
	}

	for orderRef, quantity := range byOrder {
		s.publisher.PublishReservation(ctx, messaging.EventReservationExpired, messaging.ReservationEvent{
			OrderReference: orderRef,
			Quantity:       quantity,
		})
	}

	s.logger.Info().
		Int("holds", len(holds)).
		Int("quantity", released).
		Msg("expired reservations released")

	return released, nil
}

// ListByOrder lists the holds taken under an order reference
func (s *ReservationService) ListByOrder(ctx context.Context, orderReference string) ([]*domain.Reservation, error) {
	return s.reservations.ListByOrder(ctx, orderReference)
}

// ListByBatch lists the holds pinning stock on one batch, oldest first
func (s *ReservationService) ListByBatch(ctx context.Context, batchID string) ([]*domain.Reservation, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, err
	}
	return s.reservations.ListByBatch(ctx, batchID)
}

// releaseHolds lowers quantity_reserved on each held batch, appends the
// UNRESERVED audit entries and deletes the hold rows, atomically. The sweep
// may hand over holds from several orders at once; each audit entry is
// attributed to the order that held the stock, so holds are grouped per
// order and batch before the mutations are built.
func (s *ReservationService) releaseHolds(ctx context.Context, holds []*domain.Reservation) (int, error) {
	type holdGroup struct {
		orderRef string
		batchID  string
		quantity int
	}

	groups := make([]holdGroup, 0, len(holds))
	index := make(map[string]int, len(holds))
	holdIDs := make([]string, 0, len(holds))
	total := 0
	for _, h := range holds {
		key := h.OrderReference + "\x00" + h.BatchID
		if i, ok := index[key]; ok {
			groups[i].quantity += h.Quantity
		} else {
			index[key] = len(groups)
			groups = append(groups, holdGroup{orderRef: h.OrderReference, batchID: h.BatchID, quantity: h.Quantity})
		}
		holdIDs = append(holdIDs, h.ID)
		total += h.Quantity
	}

	err := retryConflict(ctx, s.maxRetries, s.logger, func(ctx context.Context) error {
		batches := make(map[string]*domain.StockBatch, len(groups))
		muts := make([]domain.BatchMutation, 0, len(groups))
		for _, g := range groups {
			batch, ok := batches[g.batchID]
			if !ok {
				var err error
				batch, err = s.batches.GetByID(ctx, g.batchID)
				if err != nil {
					return err
				}
				batches[g.batchID] = batch
			}

			batch.QuantityReserved -= g.quantity
			if batch.QuantityReserved < 0 {
				batch.QuantityReserved = 0
			}
			muts = append(muts, domain.BatchMutation{
				Batch: batch,
				Txn:   s.holdAudit(batch, domain.TxnUnreserved, g.quantity, g.orderRef),
			})
		}
		return s.reservations.Delete(ctx, holdIDs, muts)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// holdAudit builds the zero-delta ledger entry that makes a hold visible in
// the audit trail without moving stock.
func (s *ReservationService) holdAudit(batch *domain.StockBatch, txnType domain.TransactionType, quantity int, orderReference string) *domain.StockTransaction {
	verb := "reserved"
	if txnType == domain.TxnUnreserved {
		verb = "released"
	}
	notes := formatHoldNote(verb, quantity)
	return &domain.StockTransaction{
		DrugID:          batch.DrugID,
		BatchID:         batch.ID,
		Type:            txnType,
		Quantity:        0,
		QuantityBefore:  batch.QuantityAvailable,
		QuantityAfter:   batch.QuantityAvailable,
		ReferenceNumber: &orderReference,
		Notes:           &notes,
	}
}

func formatHoldNote(verb string, quantity int) string {
	return fmt.Sprintf("%d units %s", quantity, verb)
}
