package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bridal-order-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_stock.lua
var setStockScript string

// ErrStockNotCached is returned when a product has no projection yet.
var ErrStockNotCached = errors.New("redis: stock not cached")

type Client struct {
	rdb            *redis.Client
	setStockScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:            rdb,
		setStockScript: redis.NewScript(setStockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func inventoryKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// SetStock writes a product's committed stock unless the cache already holds
// the same or a newer stock_version. It reports whether the write was applied.
func (c *Client) SetStock(ctx context.Context, stock models.ProductStock) (bool, error) {
	result, err := c.setStockScript.Run(ctx, c.rdb,
		[]string{inventoryKey(stock.ProductID)},
		stock.StockQuantity, string(stock.Status), stock.Version,
	).Result()
	if err != nil {
		return false, fmt.Errorf("set stock script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}
	return applied == 1, nil
}

// SyncStock copies products read from the database into the cache. Each write
// goes through the same version check as SetStock, so a row read before a
// newer adjustment was projected never overwrites it.
func (c *Client) SyncStock(ctx context.Context, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, p := range products {
		c.setStockScript.Eval(ctx, pipe,
			[]string{inventoryKey(p.ID)},
			p.StockQuantity, string(p.Status), p.StockVersion)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to sync stock: %w", err)
	}
	return nil
}

// GetStock reads a product's cached stock
func (c *Client) GetStock(ctx context.Context, productID int64) (*models.ProductStock, error) {
	result, err := c.rdb.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: product %d", ErrStockNotCached, productID)
	}

	stock, err := strconv.Atoi(result["stock"])
	if err != nil {
		return nil, fmt.Errorf("malformed cached stock for product %d: %w", productID, err)
	}
	version, _ := strconv.ParseInt(result["stock_version"], 10, 64)

	return &models.ProductStock{
		ProductID:     productID,
		StockQuantity: stock,
		Status:        models.ProductStatus(result["status"]),
		Version:       version,
	}, nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
