package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks that Redis answers
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(shopperID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", shopperID, key)
}

func productKey(productID int64) string {
	return fmt.Sprintf("catalog:product:%d", productID)
}

// LookupOrder returns the order a shopper's checkout key already produced
func (c *Client) LookupOrder(ctx context.Context, shopperID int64, key string) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(shopperID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", val, err)
	}
	return orderID, true, nil
}

// RememberOrder stores the order id for a checkout key with TTL
func (c *Client) RememberOrder(ctx context.Context, shopperID int64, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(shopperID, key), orderID, ttl).Err()
}

// GetProduct returns a cached product, or nil on a miss
func (c *Client) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("failed to decode cached product %d: %w", productID, err)
	}
	return &product, nil
}

// SetProduct caches a product for ttl
func (c *Client) SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, ttl).Err()
}

// InvalidateProducts drops cached products in one pipeline
func (c *Client) InvalidateProducts(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, id := range productIDs {
		pipe.Del(ctx, productKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}
