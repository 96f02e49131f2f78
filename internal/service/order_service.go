package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bridal-order-service/internal/models"
	"bridal-order-service/internal/store"
	"bridal-order-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OrderService handles checkout and order reads
type OrderService struct {
	db     store.Database
	events EventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(db store.Database, events EventPublisher) *OrderService {
	return &OrderService{
		db:     db,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a checkout submission
type CreateOrderRequest struct {
	UserID         int64              `json:"user_id" binding:"required"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents one line of a checkout
type OrderItemRequest struct {
	ProductID        int64  `json:"product_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required,min=1"`
	Size             string `json:"size,omitempty"`
	Style            string `json:"style,omitempty"`
	Color            string `json:"color,omitempty"`
	RentalDurationID *int64 `json:"rental_duration_id,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID   int64              `json:"order_id"`
	Status    models.OrderStatus `json:"status"`
	Total     int64              `json:"total"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

// CreateOrder persists a PENDING order priced from the catalog. Stock is not
// checked here; it only moves on delivery and return.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.db.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return s.replay(existing, req)
		}
	}

	products, err := s.validateOrderItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		UserID: req.UserID,
		Status: models.OrderStatusPending,
		Total:  calculateTotal(req.Items, products),
		Items:  make([]models.OrderItem, 0, len(req.Items)),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:        item.ProductID,
			Quantity:         item.Quantity,
			Price:            products[item.ProductID].Price,
			Size:             item.Size,
			Style:            item.Style,
			Color:            item.Color,
			RentalDurationID: item.RentalDurationID,
		})
	}

	if err := s.db.CreateOrder(ctx, order); err != nil {
		// A concurrent request with the same key may have won the insert.
		if order.IdempotencyKey != nil {
			if existing, lookupErr := s.db.GetOrderByIdempotencyKey(ctx, *order.IdempotencyKey); lookupErr == nil && existing != nil {
				return s.replay(existing, req)
			}
		}
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int64("total", order.Total))

	s.publishCreated(ctx, order)

	return &CreateOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Total:   order.Total,
	}, nil
}

// replay answers a resubmission with the order its idempotency key already
// created. A key reused for a different checkout is rejected.
func (s *OrderService) replay(existing *models.Order, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if !sameCheckout(existing, req) {
		s.logger.Warn("Idempotency key reused with a different request",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return nil, fmt.Errorf("%w: idempotency key %q belongs to order %d with different contents",
			ErrInvalidInput, req.IdempotencyKey, existing.ID)
	}

	return &CreateOrderResponse{
		OrderID:   existing.ID,
		Status:    existing.Status,
		Total:     existing.Total,
		Duplicate: true,
	}, nil
}

func sameCheckout(order *models.Order, req *CreateOrderRequest) bool {
	if order.UserID != req.UserID || len(order.Items) != len(req.Items) {
		return false
	}
	for i, item := range order.Items {
		r := req.Items[i]
		if item.ProductID != r.ProductID ||
			item.Quantity != r.Quantity ||
			item.Size != r.Size ||
			item.Style != r.Style ||
			item.Color != r.Color ||
			!sameOptionalID(item.RentalDurationID, r.RentalDurationID) {
			return false
		}
	}
	return true
}

func sameOptionalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func validateCreateOrder(req *CreateOrderRequest) error {
	if req == nil || len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidInput)
	}
	if req.UserID <= 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %d must be positive", ErrInvalidInput, item.ProductID)
		}
	}
	return nil
}

// validateOrderItems validates that all products exist
func (s *OrderService) validateOrderItems(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	productIDs := make([]int64, 0, len(items))
	wanted := make(map[int64]bool, len(items))
	for _, item := range items {
		if !wanted[item.ProductID] {
			wanted[item.ProductID] = true
			productIDs = append(productIDs, item.ProductID)
		}
	}

	products, err := s.db.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	for _, id := range productIDs {
		if _, ok := productMap[id]; !ok {
			return nil, fmt.Errorf("%w: product %d", ErrNotFound, id)
		}
	}

	return productMap, nil
}

// calculateTotal prices every line at the catalog price captured now
func calculateTotal(items []OrderItemRequest, products map[int64]*models.Product) int64 {
	var total int64
	for _, item := range items {
		total += products[item.ProductID].Price * int64(item.Quantity)
	}
	return total
}

func (s *OrderService) publishCreated(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Items:   items,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.db.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders returns orders newest first for the back office
func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, err := s.db.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
