package consumers

import (
	"context"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

// SupplierCache is the local supplier store the consumer keeps current
type SupplierCache interface {
	Upsert(ctx context.Context, supplier *domain.Supplier) error
	Delete(ctx context.Context, id string) error
}

// SupplierConsumer mirrors supplier module events into the local supplier
// cache. Receiving gates on this cache, so a supplier suspension propagates
// here without a synchronous call into the supplier service.
type SupplierConsumer struct {
	consumer *messaging.Consumer
	cache    SupplierCache
	logger   *logger.Logger
}

// NewSupplierConsumer creates a new supplier event consumer
func NewSupplierConsumer(rmq *messaging.RabbitMQ, cache SupplierCache, log *logger.Logger) (*SupplierConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.supplier-events", log)
	if err != nil {
		return nil, err
	}

	return &SupplierConsumer{
		consumer: consumer,
		cache:    cache,
		logger:   log.WithComponent("supplier_consumer"),
	}, nil
}

// Start subscribes to supplier events and begins consuming
func (c *SupplierConsumer) Start(ctx context.Context) error {
	if err := c.consumer.Subscribe(messaging.ExchangeSupplierEvents, "supplier.*"); err != nil {
		return err
	}

	c.consumer.RegisterHandler(messaging.EventSupplierCreated, c.handleUpserted)
	c.consumer.RegisterHandler(messaging.EventSupplierUpdated, c.handleUpserted)
	c.consumer.RegisterHandler(messaging.EventSupplierDeleted, c.handleDeleted)

	return c.consumer.Start(ctx)
}

func (c *SupplierConsumer) handleUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.SupplierUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	supplier := &domain.Supplier{
		ID:            data.SupplierID,
		Name:          data.Name,
		Status:        data.Status,
		OrdersCount:   data.OrdersCount,
		LastOrderDate: data.LastOrderDate,
	}
	if err := c.cache.Upsert(ctx, supplier); err != nil {
		return err
	}

	c.logger.Info().
		Str("supplier_id", data.SupplierID).
		Str("status", data.Status).
		Msg("supplier cache updated")
	return nil
}

func (c *SupplierConsumer) handleDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.SupplierDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if err := c.cache.Delete(ctx, data.SupplierID); err != nil {
		return err
	}

	c.logger.Info().
		Str("supplier_id", data.SupplierID).
		Msg("supplier removed from cache")
	return nil
}
