package events

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// StockEventPublisher publishes stock engine events. A nil publisher is a
// no-op so services can run without a broker in tests.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, batch *domain.StockBatch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:         batch.ID,
		InternalBatchID: batch.InternalBatchID,
		DrugID:          batch.DrugID,
		SupplierID:      batch.SupplierID,
		Quantity:        batch.QuantityReceived,
		NoExpiry:        batch.NoExpiry,
	}
	if batch.ExpiryDate != nil {
		data.ExpiryDate = batch.ExpiryDate.Format("2006-01-02")
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch received event")
	}
}

// PublishStockDispensed publishes a stock dispensed event
func (p *StockEventPublisher) PublishStockDispensed(ctx context.Context, drugID string, quantity int, batchQuantities map[string]int, ref domain.Reference, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockDispensedEvent{
		DrugID:          drugID,
		Quantity:        quantity,
		BatchQuantities: batchQuantities,
		ReferenceType:   ref.Type,
		ReferenceID:     ref.ID,
		PerformedBy:     performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockDispensed, data); err != nil {
		p.logger.Error().Err(err).Str("drug_id", drugID).Msg("failed to publish stock dispensed event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *StockEventPublisher) PublishStockAdjusted(ctx context.Context, batch *domain.StockBatch, adjustment int, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockAdjustedEvent{
		BatchID:     batch.ID,
		DrugID:      batch.DrugID,
		Adjustment:  adjustment,
		NewQuantity: batch.QuantityAvailable,
		Reason:      reason,
		PerformedBy: performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish stock adjusted event")
	}
}

// PublishStockReturned publishes a stock returned event
func (p *StockEventPublisher) PublishStockReturned(ctx context.Context, batch *domain.StockBatch, quantity int, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockReturnedEvent{
		BatchID:     batch.ID,
		DrugID:      batch.DrugID,
		SupplierID:  batch.SupplierID,
		Quantity:    quantity,
		Reason:      reason,
		PerformedBy: performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockReturned, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish stock returned event")
	}
}

// PublishStockWrittenOff publishes a stock written off event
func (p *StockEventPublisher) PublishStockWrittenOff(ctx context.Context, batch *domain.StockBatch, writeOffType string, quantity int, reason, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.StockWrittenOffEvent{
		BatchID:     batch.ID,
		DrugID:      batch.DrugID,
		Type:        writeOffType,
		Quantity:    quantity,
		Reason:      reason,
		PerformedBy: performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockWrittenOff, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish stock written off event")
	}
}

// PublishBatchRecalled publishes a batch recalled event
func (p *StockEventPublisher) PublishBatchRecalled(ctx context.Context, batch *domain.StockBatch, quantity int, recallNumber string, fullRecall bool) {
	if p == nil {
		return
	}

	data := messaging.BatchRecalledEvent{
		BatchID:      batch.ID,
		DrugID:       batch.DrugID,
		Quantity:     quantity,
		RecallNumber: recallNumber,
		FullRecall:   fullRecall,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchRecalled, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch recalled event")
	}
}

// PublishBatchStatusChanged publishes a batch status transition event
func (p *StockEventPublisher) PublishBatchStatusChanged(ctx context.Context, batch *domain.StockBatch, oldStatus domain.BatchStatus, reason string) {
	if p == nil {
		return
	}

	data := messaging.BatchStatusChangedEvent{
		BatchID:   batch.ID,
		DrugID:    batch.DrugID,
		OldStatus: string(oldStatus),
		NewStatus: string(batch.Status),
		Reason:    reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchStatusChanged, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("failed to publish batch status changed event")
	}
}

// PublishReservation publishes a reservation lifecycle event
func (p *StockEventPublisher) PublishReservation(ctx context.Context, eventType string, data messaging.ReservationEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("order_reference", data.OrderReference).Msg("failed to publish reservation event")
	}
}
