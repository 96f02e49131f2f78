package store

import (
	"context"
	"errors"

	"bridal-order-service/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("store: not found")

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Status *models.OrderStatus
	UserID *int64
	Limit  int
	Offset int
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// LockOrder reads the order with its items and holds a row lock until the
	// surrounding transaction ends.
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
}

// ProductRepository exposes the catalog fields the order flow mutates. Stock
// changes are single atomic statements.
type ProductRepository interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error)
	IncrementStock(ctx context.Context, productID int64, quantity int) (*models.Product, error)
	UpdateProductStatus(ctx context.Context, productID int64, status models.ProductStatus) error
}

// PaymentRepository records gateway payment attempts.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByProviderRef(ctx context.Context, ref string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status models.PaymentStatus, providerTxID string) error
}

// EventLog tracks consumed events for idempotent workers.
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repositories is everything available inside and outside a transaction.
type Repositories interface {
	OrderRepository
	ProductRepository
	PaymentRepository
	EventLog
}

// UnitOfWork runs fn in a single transaction. Returning an error from fn rolls
// back every write made through repos.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Database is the full persistence surface used by the services.
type Database interface {
	Repositories
	UnitOfWork
	Ping(ctx context.Context) error
	Close() error
}
