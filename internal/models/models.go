package models

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusReturned   OrderStatus = "RETURNED"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// ProductStatus is derived from the stock quantity, never set independently.
type ProductStatus string

const (
	ProductStatusInStock    ProductStatus = "IN_STOCK"
	ProductStatusLowStock   ProductStatus = "LOW_STOCK"
	ProductStatusOutOfStock ProductStatus = "OUT_OF_STOCK"
)

// ClassifyStock derives the product status for a stock level. Negative stock
// (oversold) is OUT_OF_STOCK.
func ClassifyStock(stock, lowStockThreshold int) ProductStatus {
	switch {
	case stock <= 0:
		return ProductStatusOutOfStock
	case stock <= lowStockThreshold:
		return ProductStatusLowStock
	default:
		return ProductStatusInStock
	}
}

// Product is the slice of the catalog the order flow needs.
type Product struct {
	ID            int64         `db:"id" json:"id"`
	Name          string        `db:"name" json:"name"`
	Price         int64         `db:"price" json:"price"`
	StockQuantity int           `db:"stock_quantity" json:"stock_quantity"`
	Status        ProductStatus `db:"status" json:"status"`
	StockVersion  int64         `db:"stock_version" json:"stock_version"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Order represents a customer order. Total is in VND and fixed at creation.
type Order struct {
	ID             int64       `db:"id" json:"id"`
	UserID         int64       `db:"user_id" json:"user_id"`
	Status         OrderStatus `db:"status" json:"status"`
	Total          int64       `db:"total" json:"total"`
	IdempotencyKey *string     `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`

	Items []OrderItem `db:"-" json:"items"`
}

// OrderItem is a line of an order. Price is the unit price captured at order time.
type OrderItem struct {
	ID               int64  `db:"id" json:"id"`
	OrderID          int64  `db:"order_id" json:"order_id"`
	ProductID        int64  `db:"product_id" json:"product_id"`
	Quantity         int    `db:"quantity" json:"quantity"`
	Price            int64  `db:"price" json:"price"`
	Size             string `db:"size" json:"size,omitempty"`
	Style            string `db:"style" json:"style,omitempty"`
	Color            string `db:"color" json:"color,omitempty"`
	RentalDurationID *int64 `db:"rental_duration_id" json:"rental_duration_id,omitempty"`
}

// Subtotal is the line amount.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Payment represents one attempt to pay an order through the gateway.
type Payment struct {
	ID               int64         `db:"id" json:"id"`
	OrderID          int64         `db:"order_id" json:"order_id"`
	Provider         string        `db:"provider" json:"provider"`
	RequestID        string        `db:"request_id" json:"request_id"`
	ProviderOrderRef string        `db:"provider_order_ref" json:"provider_order_ref"`
	Status           PaymentStatus `db:"status" json:"status"`
	ProviderTxID     string        `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Amount           int64         `db:"amount" json:"amount"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentStatus is the state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

const PaymentProviderMoMo = "momo"

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
