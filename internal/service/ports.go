package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// EventPublisher publishes domain events after their transaction commits
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}

// IdempotencyStore remembers which order a checkout key produced
type IdempotencyStore interface {
	LookupOrder(ctx context.Context, shopperID int64, key string) (orderID int64, found bool, err error)
	RememberOrder(ctx context.Context, shopperID int64, key string, orderID int64, ttl time.Duration) error
}

// ProductCache holds read-only product copies for catalog display
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	SetProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
	InvalidateProducts(ctx context.Context, ids ...int64) error
}
