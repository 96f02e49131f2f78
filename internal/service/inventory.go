package service

import (
	"context"
	"fmt"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/store"
)

// InventoryAdjuster moves product stock in lockstep with order transitions.
// It writes only through the repositories it is handed, so the caller's
// transaction decides whether the adjustments stick.
type InventoryAdjuster struct {
	lowStockThreshold int
}

// NewInventoryAdjuster creates an adjuster using one low-stock threshold for
// every recomputation.
func NewInventoryAdjuster(lowStockThreshold int) *InventoryAdjuster {
	return &InventoryAdjuster{lowStockThreshold: lowStockThreshold}
}

// ApplyDelivery takes each item's quantity out of stock. Stock may go negative;
// such products are classified OUT_OF_STOCK.
func (a *InventoryAdjuster) ApplyDelivery(ctx context.Context, products store.ProductRepository, items []models.OrderItem) ([]models.ProductStock, error) {
	return a.apply(ctx, items, products.DecrementStock, products)
}

// ApplyReturn puts each item's quantity back into stock.
func (a *InventoryAdjuster) ApplyReturn(ctx context.Context, products store.ProductRepository, items []models.OrderItem) ([]models.ProductStock, error) {
	return a.apply(ctx, items, products.IncrementStock, products)
}

type stockFunc func(ctx context.Context, productID int64, quantity int) (*models.Product, error)

func (a *InventoryAdjuster) apply(ctx context.Context, items []models.OrderItem, adjust stockFunc, products store.ProductRepository) ([]models.ProductStock, error) {
	// One snapshot per product; a product listed twice keeps its last value.
	index := make(map[int64]int, len(items))
	snapshots := make([]models.ProductStock, 0, len(items))

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidInput, item.ID, item.Quantity)
		}

		product, err := adjust(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to adjust stock for product %d: %w", item.ProductID, err)
		}

		status := models.ClassifyStock(product.StockQuantity, a.lowStockThreshold)
		if err := products.UpdateProductStatus(ctx, product.ID, status); err != nil {
			return nil, fmt.Errorf("failed to update status for product %d: %w", product.ID, err)
		}

		snapshot := models.ProductStock{
			ProductID:     product.ID,
			StockQuantity: product.StockQuantity,
			Status:        status,
			Version:       product.StockVersion,
		}
		if i, ok := index[product.ID]; ok {
			snapshots[i] = snapshot
			continue
		}
		index[product.ID] = len(snapshots)
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}
