package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaflow/pharmaflow-backend/internal/stock/domain"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

type fakeSupplierCache struct {
	suppliers map[string]*domain.Supplier
}

func newFakeSupplierCache() *fakeSupplierCache {
	return &fakeSupplierCache{suppliers: make(map[string]*domain.Supplier)}
}

func (c *fakeSupplierCache) Upsert(_ context.Context, supplier *domain.Supplier) error {
	c.suppliers[supplier.ID] = supplier
	return nil
}

func (c *fakeSupplierCache) Delete(_ context.Context, id string) error {
	delete(c.suppliers, id)
	return nil
}

func newTestConsumer(cache SupplierCache) *SupplierConsumer {
	return &SupplierConsumer{
		cache:  cache,
		logger: logger.New("test", "test"),
	}
}

func mustEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "supplier-service", "", data)
	require.NoError(t, err)
	return event
}

func TestSupplierConsumer_Upsert(t *testing.T) {
	cache := newFakeSupplierCache()
	consumer := newTestConsumer(cache)

	event := mustEvent(t, messaging.EventSupplierCreated, messaging.SupplierUpsertedEvent{
		SupplierID: "sup-1",
		Name:       "MediSupply GmbH",
		Status:     domain.SupplierStatusActive,
	})
	require.NoError(t, consumer.handleUpserted(context.Background(), event))

	stored := cache.suppliers["sup-1"]
	require.NotNil(t, stored)
	assert.Equal(t, "MediSupply GmbH", stored.Name)
	assert.True(t, stored.IsActive())
}

func TestSupplierConsumer_SuspensionPropagates(t *testing.T) {
	cache := newFakeSupplierCache()
	cache.suppliers["sup-1"] = &domain.Supplier{
		ID: "sup-1", Name: "MediSupply GmbH", Status: domain.SupplierStatusActive,
	}
	consumer := newTestConsumer(cache)

	event := mustEvent(t, messaging.EventSupplierUpdated, messaging.SupplierUpsertedEvent{
		SupplierID: "sup-1",
		Name:       "MediSupply GmbH",
		Status:     domain.SupplierStatusSuspended,
	})
	require.NoError(t, consumer.handleUpserted(context.Background(), event))

	assert.False(t, cache.suppliers["sup-1"].IsActive())
}

func TestSupplierConsumer_Delete(t *testing.T) {
	cache := newFakeSupplierCache()
	cache.suppliers["sup-1"] = &domain.Supplier{ID: "sup-1"}
	consumer := newTestConsumer(cache)

	event := mustEvent(t, messaging.EventSupplierDeleted, messaging.SupplierDeletedEvent{SupplierID: "sup-1"})
	require.NoError(t, consumer.handleDeleted(context.Background(), event))

	assert.NotContains(t, cache.suppliers, "sup-1")
}

func TestSupplierConsumer_MalformedPayload(t *testing.T) {
	consumer := newTestConsumer(newFakeSupplierCache())

	event := &messaging.Event{Type: messaging.EventSupplierCreated, Data: []byte("{not json")}
	assert.Error(t, consumer.handleUpserted(context.Background(), event))
}
