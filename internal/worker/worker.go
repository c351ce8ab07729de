package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProductRefresher reloads cached catalog entries from the database
type ProductRefresher interface {
	RefreshProducts(ctx context.Context, ids ...int64)
}

// messageSource is the consuming side of the broker
type messageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CatalogCacheWorker keeps the product cache in step with committed orders
type CatalogCacheWorker struct {
	consumer     messageSource
	eventHandler *broker.EventHandler
	catalog      ProductRefresher
	logger       *zap.Logger
}

// NewCatalogCacheWorker creates a new catalog cache worker
func NewCatalogCacheWorker(consumer *broker.Consumer, catalog ProductRefresher) *CatalogCacheWorker {
	return newCatalogCacheWorker(consumer, catalog)
}

func newCatalogCacheWorker(consumer messageSource, catalog ProductRefresher) *CatalogCacheWorker {
	w := &CatalogCacheWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		catalog:      catalog,
		logger:       util.ComponentLogger("catalog-cache-worker"),
	}

	w.eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	return w
}

// handleOrderPlaced refreshes every product whose stock the order consumed
func (w *CatalogCacheWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	ids := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		ids = append(ids, item.ProductID)
	}
	w.catalog.RefreshProducts(ctx, ids...)

	w.logger.Info("Refreshed cached products for order",
		zap.Int64("order_id", event.OrderID),
		zap.Int64s("product_ids", ids))
	return nil
}

func (w *CatalogCacheWorker) handleOrderStatusChanged(_ context.Context, event *models.OrderStatusChangedEvent) error {
	w.logger.Info("Order status changed",
		zap.Int64("order_id", event.OrderID),
		zap.String("from", string(event.OldStatus)),
		zap.String("to", string(event.NewStatus)))
	return nil
}

// Handle processes a single message
func (w *CatalogCacheWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Start starts the worker
func (w *CatalogCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog cache worker")
	return w.consumer.StartConsuming(ctx, w.Handle)
}

// Stop stops the worker
func (w *CatalogCacheWorker) Stop() error {
	w.logger.Info("Stopping catalog cache worker")
	return w.consumer.Close()
}
