package worker

import (
	"context"
	"errors"
	"testing"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/service"
	"bridal-order-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	entries map[int64]models.ProductStock
	writes  int
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[int64]models.ProductStock)}
}

func (c *fakeCache) SetStock(_ context.Context, stock models.ProductStock) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.writes++
	if existing, ok := c.entries[stock.ProductID]; ok && existing.Version >= stock.Version {
		return false, nil
	}
	c.entries[stock.ProductID] = stock
	return true, nil
}

func (c *fakeCache) SyncStock(ctx context.Context, products []models.Product) error {
	for _, p := range products {
		if _, err := c.SetStock(ctx, models.ProductStock{
			ProductID:     p.ID,
			StockQuantity: p.StockQuantity,
			Status:        p.Status,
			Version:       p.StockVersion,
		}); err != nil {
			return err
		}
	}
	return nil
}

// capturingPublisher keeps INVENTORY_ADJUSTED events so tests can feed them
// to the worker.
type capturingPublisher struct {
	adjusted []*models.InventoryAdjustedEvent
}

func (p *capturingPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error {
	return nil
}

func (p *capturingPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}

func (p *capturingPublisher) PublishInventoryAdjusted(_ context.Context, e *models.InventoryAdjustedEvent) error {
	p.adjusted = append(p.adjusted, e)
	return nil
}

func (p *capturingPublisher) PublishPaymentConfirmed(context.Context, *models.PaymentConfirmedEvent) error {
	return nil
}

// deliverDuringListStore commits a delivery right after ListProducts has
// read the catalog, the window between a rebuild's read and its cache write.
type deliverDuringListStore struct {
	*store.MemoryStore
	deliver func()
}

func (s *deliverDuringListStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.MemoryStore.ListProducts(ctx)
	if s.deliver != nil {
		s.deliver()
		s.deliver = nil
	}
	return products, err
}

func adjustedEvent(id string, version int64, stock int) *models.InventoryAdjustedEvent {
	return &models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{EventID: id, EventType: models.EventTypeInventoryAdjusted},
		OrderID:   7,
		Kind:      models.AdjustmentDelivery,
		Products: []models.ProductStock{{
			ProductID:     5,
			StockQuantity: stock,
			Status:        models.ClassifyStock(stock, 5),
			Version:       version,
		}},
	}
}

func TestHandleInventoryAdjusted(t *testing.T) {
	db := store.NewMemoryStore()
	cache := newFakeCache()
	w := NewStockProjectionWorker(nil, db, cache)
	ctx := context.Background()

	require.NoError(t, w.HandleInventoryAdjusted(ctx, adjustedEvent("evt-2", 2, 8)))
	assert.Equal(t, 8, cache.entries[5].StockQuantity)

	// Redelivery is skipped entirely.
	require.NoError(t, w.HandleInventoryAdjusted(ctx, adjustedEvent("evt-2", 2, 8)))
	assert.Equal(t, 1, cache.writes)

	// An older adjustment arriving late does not roll the projection back.
	require.NoError(t, w.HandleInventoryAdjusted(ctx, adjustedEvent("evt-1", 1, 10)))
	assert.Equal(t, 8, cache.entries[5].StockQuantity)

	processed, err := db.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleInventoryAdjustedCacheFailureIsRetried(t *testing.T) {
	db := store.NewMemoryStore()
	cache := newFakeCache()
	cache.err = errors.New("connection refused")
	w := NewStockProjectionWorker(nil, db, cache)
	ctx := context.Background()

	assert.Error(t, w.HandleInventoryAdjusted(ctx, adjustedEvent("evt-1", 1, 8)))

	processed, err := db.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed, "failed events stay unprocessed so redelivery applies them")

	cache.err = nil
	require.NoError(t, w.HandleInventoryAdjusted(ctx, adjustedEvent("evt-1", 1, 8)))
	assert.Equal(t, 8, cache.entries[5].StockQuantity)
}

func TestRebuild(t *testing.T) {
	db := store.NewMemoryStore()
	db.PutProduct(models.Product{ID: 1, StockQuantity: 12, Status: models.ProductStatusInStock})
	db.PutProduct(models.Product{ID: 2, StockQuantity: 0, Status: models.ProductStatusOutOfStock})
	cache := newFakeCache()
	w := NewStockProjectionWorker(nil, db, cache)

	require.NoError(t, w.Rebuild(context.Background()))
	require.Len(t, cache.entries, 2)
	assert.Equal(t, 12, cache.entries[1].StockQuantity)
	assert.Equal(t, models.ProductStatusOutOfStock, cache.entries[2].Status)
}

func TestRebuildDoesNotHideDeliveryCommittedDuringRead(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutProduct(models.Product{ID: 5, Name: "Áo dài cưới", Price: 500000, StockQuantity: 10, Status: models.ProductStatusInStock})
	mem.PutOrder(models.Order{
		ID:     7,
		UserID: 1,
		Status: models.OrderStatusShipped,
		Total:  1000000,
		Items:  []models.OrderItem{{ProductID: 5, Quantity: 2, Price: 500000}},
	})

	events := &capturingPublisher{}
	reconciler := service.NewReconciler(mem, service.NewInventoryAdjuster(5), events)
	ctx := context.Background()

	db := &deliverDuringListStore{MemoryStore: mem}
	db.deliver = func() {
		_, err := reconciler.Transition(ctx, 7, models.OrderStatusDelivered)
		require.NoError(t, err)
	}

	cache := newFakeCache()
	w := NewStockProjectionWorker(nil, db, cache)

	require.NoError(t, w.Rebuild(ctx))
	assert.Equal(t, 10, cache.entries[5].StockQuantity, "rebuild wrote the row it read")

	require.Len(t, events.adjusted, 1)
	require.NoError(t, w.HandleInventoryAdjusted(ctx, events.adjusted[0]))

	products, err := mem.GetProductsByIDs(ctx, []int64{5})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, products[0].StockQuantity, cache.entries[5].StockQuantity)
	assert.Equal(t, 8, cache.entries[5].StockQuantity)
}

func TestOutOfOrderDeliveriesConvergeOnLatestStock(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutProduct(models.Product{ID: 5, StockQuantity: 10, Status: models.ProductStatusInStock})
	for _, id := range []int64{7, 8} {
		mem.PutOrder(models.Order{
			ID:     id,
			UserID: 1,
			Status: models.OrderStatusShipped,
			Total:  500000,
			Items:  []models.OrderItem{{ProductID: 5, Quantity: 1, Price: 500000}},
		})
	}

	events := &capturingPublisher{}
	reconciler := service.NewReconciler(mem, service.NewInventoryAdjuster(5), events)
	ctx := context.Background()

	_, err := reconciler.Transition(ctx, 7, models.OrderStatusDelivered)
	require.NoError(t, err)
	_, err = reconciler.Transition(ctx, 8, models.OrderStatusDelivered)
	require.NoError(t, err)
	require.Len(t, events.adjusted, 2)

	cache := newFakeCache()
	w := NewStockProjectionWorker(nil, mem, cache)

	// The broker hands them over in the opposite order.
	require.NoError(t, w.HandleInventoryAdjusted(ctx, events.adjusted[1]))
	require.NoError(t, w.HandleInventoryAdjusted(ctx, events.adjusted[0]))

	assert.Equal(t, 8, cache.entries[5].StockQuantity)
}
