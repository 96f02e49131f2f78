package store

import (
	"context"
	"os"
	"testing"

	"bridal-order-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedProduct(t *testing.T, s *Store, price int64, stock int) int64 {
	t.Helper()
	var id int64
	err := s.db.GetContext(context.Background(), &id,
		"INSERT INTO products (name, price, stock_quantity, status) VALUES ($1, $2, $3, $4) RETURNING id",
		"Áo dài lụa", price, stock, models.ClassifyStock(stock, 5))
	require.NoError(t, err)
	return id
}

func TestCreateOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	productID := seedProduct(t, store, 500000, 10)

	order := &models.Order{
		UserID: 123,
		Status: models.OrderStatusPending,
		Total:  1000000,
		Items: []models.OrderItem{
			{ProductID: productID, Quantity: 2, Price: 500000, Size: "M", Color: "đỏ"},
		},
	}

	err := store.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.NotZero(t, order.Items[0].ID)

	retrieved, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.UserID, retrieved.UserID)
	assert.Equal(t, order.Total, retrieved.Total)
	require.Len(t, retrieved.Items, 1)
	assert.Equal(t, "M", retrieved.Items[0].Size)
}

func TestIdempotency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	productID := seedProduct(t, store, 100000, 3)
	key := "idempotent-key-456"

	order := &models.Order{
		UserID:         123,
		Status:         models.OrderStatusPending,
		Total:          100000,
		IdempotencyKey: &key,
		Items:          []models.OrderItem{{ProductID: productID, Quantity: 1, Price: 100000}},
	}
	require.NoError(t, store.CreateOrder(ctx, order))

	order2 := &models.Order{
		UserID:         456,
		Status:         models.OrderStatusPending,
		Total:          200000,
		IdempotencyKey: &key,
		Items:          []models.OrderItem{{ProductID: productID, Quantity: 2, Price: 100000}},
	}
	assert.Error(t, store.CreateOrder(ctx, order2)) // unique constraint
}

func TestRunInTxRollsBackStock(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	productID := seedProduct(t, store, 100000, 10)

	err := store.RunInTx(ctx, func(ctx context.Context, repos Repositories) error {
		if _, err := repos.DecrementStock(ctx, productID, 4); err != nil {
			return err
		}
		_, err := repos.DecrementStock(ctx, -1, 1)
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)

	products, err := store.GetProductsByIDs(ctx, []int64{productID})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 10, products[0].StockQuantity)
	assert.Equal(t, int64(0), products[0].StockVersion)

	p, err := store.DecrementStock(ctx, productID, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, p.StockQuantity)
	assert.Equal(t, int64(1), p.StockVersion)
}
