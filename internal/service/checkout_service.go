package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCountry is used when a new checkout address leaves the country blank
const DefaultCountry = "France"

// CheckoutService turns carts into orders
type CheckoutService struct {
	store          *store.Store
	eventPublisher EventPublisher
	idempotency    IdempotencyStore
	policy         ShippingPolicy
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout service.
// eventPublisher and idempotency may be nil.
func NewCheckoutService(
	store *store.Store,
	eventPublisher EventPublisher,
	idempotency IdempotencyStore,
	policy ShippingPolicy,
	idempotencyTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		store:          store,
		eventPublisher: eventPublisher,
		idempotency:    idempotency,
		policy:         policy,
		idempotencyTTL: idempotencyTTL,
		logger:         util.ComponentLogger("checkout"),
	}
}

// AddressInput is the new-address form submitted at checkout
type AddressInput struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// CheckoutRequest represents a request to check out the shopper's cart.
// Exactly one of AddressID and NewAddress is expected.
type CheckoutRequest struct {
	ShopperID      int64         `json:"-"`
	AddressID      *int64        `json:"address_id,omitempty"`
	NewAddress     *AddressInput `json:"new_address,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// CheckoutResult is the committed order; Replayed is set when an earlier
// checkout with the same idempotency key is returned instead of a new one.
type CheckoutResult struct {
	Order    *models.Order
	Replayed bool
}

// Checkout validates the cart and shipping address, then commits the order
// transaction. Failures leave the cart, stock and orders untouched.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	var err error
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var result *CheckoutResult
	result, err = s.checkout(ctx, req)
	if err != nil {
		util.CheckoutFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Info("Checkout rejected",
			zap.Int64("shopper_id", req.ShopperID),
			zap.String("reason", failureReason(err)),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.replay(ctx, req.ShopperID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			util.CheckoutReplaysTotal.Inc()
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		}
	} else {
		req.IdempotencyKey = uuid.New().String()
	}

	count, err := s.store.CountCartItems(ctx, req.ShopperID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	if count == 0 {
		return nil, models.ErrEmptyCart
	}

	params := store.PlaceOrderParams{
		ShopperID:      req.ShopperID,
		IdempotencyKey: req.IdempotencyKey,
		ShippingFee:    s.policy.FeeFor,
	}
	if err := s.resolveAddress(ctx, req, &params); err != nil {
		return nil, err
	}

	order, err := s.store.PlaceOrder(ctx, params)
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		// a concurrent request with the same key may have won the unique constraint
		if existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.ShopperID, req.IdempotencyKey); lookupErr == nil && existing != nil {
			return &CheckoutResult{Order: existing, Replayed: true}, nil
		}
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	s.afterCommit(ctx, req, order)
	return &CheckoutResult{Order: order}, nil
}

// replay finds the order an idempotency key already produced, Redis first
func (s *CheckoutService) replay(ctx context.Context, shopperID int64, key string) (*models.Order, error) {
	if s.idempotency != nil {
		orderID, found, err := s.idempotency.LookupOrder(ctx, shopperID, key)
		if err != nil {
			s.logger.Warn("Idempotency cache lookup failed, falling back to DB", zap.Error(err))
		} else if found {
			order, err := s.store.GetOrderForShopper(ctx, orderID, shopperID)
			if err == nil {
				return order, nil
			}
			if !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
		}
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, shopperID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	return s.store.GetOrderByID(ctx, existing.ID)
}

// resolveAddress validates the shipping address before any transaction starts
func (s *CheckoutService) resolveAddress(ctx context.Context, req *CheckoutRequest, params *store.PlaceOrderParams) error {
	if req.NewAddress != nil {
		addr, err := newAddress(req.ShopperID, req.NewAddress)
		if err != nil {
			return err
		}
		params.NewAddress = addr
		return nil
	}

	if req.AddressID == nil {
		return &models.AddressError{Violations: map[string]string{"address_id": "required"}}
	}

	if _, err := s.store.GetAddress(ctx, *req.AddressID, req.ShopperID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.AddressError{Violations: map[string]string{"address_id": "not_found"}}
		}
		return fmt.Errorf("failed to load address: %w", err)
	}
	params.AddressID = req.AddressID
	return nil
}

func newAddress(shopperID int64, in *AddressInput) (*models.Address, error) {
	violations := map[string]string{}
	required := map[string]string{
		"street":      in.Street,
		"city":        in.City,
		"postal_code": in.PostalCode,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			violations[field] = "required"
		}
	}
	if len(violations) > 0 {
		return nil, &models.AddressError{Violations: violations}
	}

	country := strings.TrimSpace(in.Country)
	if country == "" {
		country = DefaultCountry
	}

	return &models.Address{
		ShopperID:  shopperID,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    country,
	}, nil
}

// afterCommit runs the best-effort side effects of a committed checkout
func (s *CheckoutService) afterCommit(ctx context.Context, req *CheckoutRequest, order *models.Order) {
	util.CheckoutsTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("shopper_id", order.ShopperID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(order.Lines)))

	if s.idempotency != nil {
		if err := s.idempotency.RememberOrder(ctx, req.ShopperID, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
		}
	}

	if s.eventPublisher == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(order.Lines))
	for _, l := range order.Lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		ShopperID:   order.ShopperID,
		TotalAmount: order.TotalAmount,
		Items:       items,
	}

	if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
		util.EventPublishFailuresTotal.WithLabelValues(models.EventTypeOrderPlaced).Inc()
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// Addresses lists the shopper's saved addresses for the checkout form
func (s *CheckoutService) Addresses(ctx context.Context, shopperID int64) ([]models.Address, error) {
	return s.store.ListAddresses(ctx, shopperID)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		models.ErrProductUnavailable,
		models.ErrInsufficientStock,
		models.ErrEmptyCart,
		models.ErrInvalidAddress,
		models.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
