package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeInventoryAdjusted  = "INVENTORY_ADJUSTED"
	EventTypePaymentConfirmed   = "PAYMENT_CONFIRMED"
)

// Inventory adjustment kinds
const (
	AdjustmentDelivery = "DELIVERY"
	AdjustmentReturn   = "RETURN"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when checkout persists an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Total   int64           `json:"total"`
	Items   []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a committed transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// InventoryAdjustedEvent carries the committed stock of every product touched by a transition
type InventoryAdjustedEvent struct {
	BaseEvent
	OrderID  int64          `json:"order_id"`
	Kind     string         `json:"kind"`
	Products []ProductStock `json:"products"`
}

// PaymentConfirmedEvent published when the gateway reports a successful payment
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Amount  int64  `json:"amount"`
	TxID    string `json:"tx_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

// ProductStock is a product's stock snapshot after an adjustment. Version is
// the product's stock_version at that point; it grows with every stock change.
type ProductStock struct {
	ProductID     int64         `json:"product_id"`
	StockQuantity int           `json:"stock_quantity"`
	Status        ProductStatus `json:"status"`
	Version       int64         `json:"version"`
}
