package service

import (
	"context"
	"fmt"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/store"
	"bridal-order-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Where a stock answer came from.
const (
	StockSourceCache    = "cache"
	StockSourceDatabase = "database"
)

// StockReader reads the cached stock projection.
type StockReader interface {
	GetStock(ctx context.Context, productID int64) (*models.ProductStock, error)
}

// StockView is a product's stock as served to the storefront.
type StockView struct {
	models.ProductStock
	Source string `json:"source"`
}

// StockService answers stock lookups from the projection, falling back to
// the products table when the projection is missing or unreachable.
type StockService struct {
	products store.ProductRepository
	cache    StockReader
	logger   *zap.Logger
}

// NewStockService creates a stock service. cache may be nil.
func NewStockService(products store.ProductRepository, cache StockReader) *StockService {
	return &StockService{
		products: products,
		cache:    cache,
		logger:   util.GetLogger(),
	}
}

// GetStock returns a product's stock and derived status
func (s *StockService) GetStock(ctx context.Context, productID int64) (*StockView, error) {
	ctx, span := util.StartSpan(ctx, "StockService.GetStock", attribute.Int64("product_id", productID))
	defer span.End()

	if s.cache != nil {
		stock, err := s.cache.GetStock(ctx, productID)
		if err == nil {
			return &StockView{ProductStock: *stock, Source: StockSourceCache}, nil
		}
		s.logger.Debug("Stock projection miss, reading database",
			zap.Int64("product_id", productID), zap.Error(err))
	}

	products, err := s.products.GetProductsByIDs(ctx, []int64{productID})
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}

	p := products[0]
	return &StockView{
		ProductStock: models.ProductStock{
			ProductID:     p.ID,
			StockQuantity: p.StockQuantity,
			Status:        p.Status,
			Version:       p.StockVersion,
		},
		Source: StockSourceDatabase,
	}, nil
}
