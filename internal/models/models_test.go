package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		threshold int
		want      ProductStatus
	}{
		{name: "oversold", stock: -3, threshold: 5, want: ProductStatusOutOfStock},
		{name: "empty", stock: 0, threshold: 5, want: ProductStatusOutOfStock},
		{name: "one left", stock: 1, threshold: 5, want: ProductStatusLowStock},
		{name: "at threshold", stock: 5, threshold: 5, want: ProductStatusLowStock},
		{name: "above threshold", stock: 6, threshold: 5, want: ProductStatusInStock},
		{name: "custom threshold", stock: 8, threshold: 10, want: ProductStatusLowStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStock(tt.stock, tt.threshold))
		})
	}
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range OrderStatuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, OrderStatus("PAID").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestOrderItemSubtotal(t *testing.T) {
	item := OrderItem{Quantity: 3, Price: 250000}
	assert.Equal(t, int64(750000), item.Subtotal())
}
