package service

import (
	"context"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order reads and the admin status workflow
type OrderService struct {
	store          *store.Store
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service; eventPublisher may be nil
func NewOrderService(store *store.Store, eventPublisher EventPublisher) *OrderService {
	return &OrderService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.ComponentLogger("orders"),
	}
}

// GetOrder retrieves one of the shopper's orders with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID, shopperID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.store.GetOrderForShopper(ctx, orderID, shopperID)
}

// ListForShopper returns the shopper's order history, newest first
func (s *OrderService) ListForShopper(ctx context.Context, shopperID int64) ([]models.Order, error) {
	return s.store.GetOrdersByShopperID(ctx, shopperID)
}

// ListAll returns every order, optionally filtered by status
func (s *OrderService) ListAll(ctx context.Context, status string) ([]models.Order, error) {
	if status == "" {
		return s.store.ListOrders(ctx, nil)
	}
	parsed, err := models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, &parsed)
}

// GetAnyOrder retrieves an order regardless of owner
func (s *OrderService) GetAnyOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// UpdateStatus moves an order to any status. No transition rules apply.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var next models.OrderStatus
	next, err = models.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var previous models.OrderStatus
	previous, err = s.store.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return nil, err
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)))

	if s.eventPublisher != nil && previous != next {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:   orderID,
			OldStatus: previous,
			NewStatus: next,
		}
		if pubErr := s.eventPublisher.PublishOrderStatusChanged(ctx, event); pubErr != nil {
			util.EventPublishFailuresTotal.WithLabelValues(models.EventTypeOrderStatusChanged).Inc()
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", orderID), zap.Error(pubErr))
		}
	}

	var order *models.Order
	order, err = s.store.GetOrderByID(ctx, orderID)
	return order, err
}
