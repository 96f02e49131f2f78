package worker

import (
	"context"
	"fmt"

	"bridal-order-service/internal/broker"
	"bridal-order-service/internal/models"
	"bridal-order-service/internal/store"
	"bridal-order-service/internal/util"

	"go.uber.org/zap"
)

// StockCache is the read-side projection of product stock.
type StockCache interface {
	SetStock(ctx context.Context, stock models.ProductStock) (bool, error)
	SyncStock(ctx context.Context, products []models.Product) error
}

// ProjectionStore is what the worker reads from the database.
type ProjectionStore interface {
	store.EventLog
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// StockProjectionWorker mirrors committed stock into the cache from
// INVENTORY_ADJUSTED events. The database stays the source of truth; the
// cache only ever receives values that were already committed, ordered by
// each product's stock_version.
type StockProjectionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	db           ProjectionStore
	cache        StockCache
	logger       *zap.Logger
}

// NewStockProjectionWorker creates a new stock projection worker
func NewStockProjectionWorker(consumer *broker.Consumer, db ProjectionStore, cache StockCache) *StockProjectionWorker {
	w := &StockProjectionWorker{
		consumer: consumer,
		db:       db,
		cache:    cache,
		logger:   util.GetLogger(),
	}

	w.eventHandler = broker.NewEventHandler()
	w.eventHandler.OnInventoryAdjusted(w.HandleInventoryAdjusted)
	return w
}

// Start rebuilds the projection and then consumes events until ctx ends
func (w *StockProjectionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock projection worker")

	if err := w.Rebuild(ctx); err != nil {
		// Events will still bring touched products up to date.
		w.logger.Error("Failed to rebuild stock projection", zap.Error(err))
	}

	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockProjectionWorker) Stop() error {
	w.logger.Info("Stopping stock projection worker")
	return w.consumer.Close()
}

// Rebuild copies every product's stock from the database into the cache
func (w *StockProjectionWorker) Rebuild(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "StockProjectionWorker.Rebuild")
	defer span.End()

	products, err := w.db.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}
	if err := w.cache.SyncStock(ctx, products); err != nil {
		util.StockProjectionUpdates.WithLabelValues("error").Inc()
		return err
	}

	util.StockProjectionUpdates.WithLabelValues("rebuilt").Add(float64(len(products)))
	w.logger.Info("Stock projection rebuilt", zap.Int("products", len(products)))
	return nil
}

// HandleInventoryAdjusted applies one event. Redelivered events are skipped.
func (w *StockProjectionWorker) HandleInventoryAdjusted(ctx context.Context, event *models.InventoryAdjustedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockProjectionWorker.HandleInventoryAdjusted")
	defer span.End()

	processed, err := w.db.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	for _, stock := range event.Products {
		applied, err := w.cache.SetStock(ctx, stock)
		if err != nil {
			util.StockProjectionUpdates.WithLabelValues("error").Inc()
			util.RecordError(span, err)
			return fmt.Errorf("failed to project stock for product %d: %w", stock.ProductID, err)
		}
		if applied {
			util.StockProjectionUpdates.WithLabelValues("applied").Inc()
		} else {
			util.StockProjectionUpdates.WithLabelValues("stale").Inc()
		}
	}

	if err := w.db.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	w.logger.Debug("Stock projection updated",
		zap.String("event_id", event.EventID),
		zap.Int64("order_id", event.OrderID),
		zap.Int("products", len(event.Products)))
	return nil
}
