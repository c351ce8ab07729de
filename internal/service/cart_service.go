package service

import (
	"context"
	"errors"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService handles the server-persisted shopper carts
type CartService struct {
	store  *store.Store
	policy ShippingPolicy
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, policy ShippingPolicy) *CartService {
	return &CartService{
		store:  store,
		policy: policy,
		logger: util.ComponentLogger("cart"),
	}
}

// CartLineView is a cart line enriched with live catalog data for display
type CartLineView struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	// DisplayQuantity is Quantity clamped to current stock; never persisted.
	DisplayQuantity int             `json:"display_quantity"`
	Stock           int             `json:"stock"`
	Available       bool            `json:"available"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

// CartSnapshot is a read of the cart priced at live catalog prices.
// Totals are advisory: checkout re-prices everything.
type CartSnapshot struct {
	ShopperID int64          `json:"shopper_id"`
	Lines     []CartLineView `json:"lines"`
	ItemCount int            `json:"item_count"`
	Totals
}

// AddLine adds quantity units of a product to the shopper's cart
func (s *CartService) AddLine(ctx context.Context, shopperID, productID int64, quantity int) (int, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddLine")
	var err error
	defer func() { util.EndSpan(span, err) }()

	var total int
	total, err = s.store.AddToCart(ctx, shopperID, productID, quantity)
	s.record("add", err)
	if err != nil {
		s.logger.Info("Cart add rejected",
			zap.Int64("shopper_id", shopperID),
			zap.Int64("product_id", productID),
			zap.Int("quantity", quantity),
			zap.Error(err))
		return 0, err
	}

	s.logger.Debug("Cart line added",
		zap.Int64("shopper_id", shopperID),
		zap.Int64("product_id", productID),
		zap.Int("line_quantity", total))
	return total, nil
}

// SetLineQuantity replaces a line's quantity; zero or less removes the line
func (s *CartService) SetLineQuantity(ctx context.Context, shopperID, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveLine(ctx, shopperID, productID)
	}

	ctx, span := util.StartSpan(ctx, "CartService.SetLineQuantity")
	err := s.store.SetCartQuantity(ctx, shopperID, productID, quantity)
	util.EndSpan(span, err)

	s.record("update", err)
	if err != nil {
		s.logger.Info("Cart update rejected",
			zap.Int64("shopper_id", shopperID),
			zap.Int64("product_id", productID),
			zap.Int("quantity", quantity),
			zap.Error(err))
	}
	return err
}

// RemoveLine removes a product from the cart; absent lines are ignored
func (s *CartService) RemoveLine(ctx context.Context, shopperID, productID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveLine")
	err := s.store.RemoveFromCart(ctx, shopperID, productID)
	util.EndSpan(span, err)

	s.record("remove", err)
	return err
}

// Clear empties the shopper's cart
func (s *CartService) Clear(ctx context.Context, shopperID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.Clear")
	err := s.store.ClearCart(ctx, shopperID)
	util.EndSpan(span, err)

	s.record("clear", err)
	return err
}

// Snapshot reads the cart joined with live product data and prices it
func (s *CartService) Snapshot(ctx context.Context, shopperID int64) (*CartSnapshot, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Snapshot")
	defer span.End()

	items, err := s.store.GetCartItems(ctx, shopperID)
	if err != nil {
		return nil, err
	}

	return s.price(shopperID, items), nil
}

func (s *CartService) price(shopperID int64, items []models.CartItem) *CartSnapshot {
	snap := &CartSnapshot{
		ShopperID: shopperID,
		Lines:     make([]CartLineView, 0, len(items)),
	}

	subtotal := decimal.Zero
	for _, item := range items {
		display := item.Quantity
		if display > item.Stock {
			display = item.Stock
		}

		snap.Lines = append(snap.Lines, CartLineView{
			ProductID:       item.ProductID,
			Title:           item.Title,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DisplayQuantity: display,
			Stock:           item.Stock,
			Available:       item.Active && item.Stock >= item.Quantity,
			LineTotal:       item.LineTotal(),
		})
		subtotal = subtotal.Add(item.LineTotal())
		snap.ItemCount += item.Quantity
	}

	if len(items) == 0 {
		snap.Totals = Totals{Subtotal: decimal.Zero, ShippingFee: decimal.Zero, Total: decimal.Zero}
	} else {
		snap.Totals = s.policy.Price(subtotal)
	}
	return snap
}

// Count returns the number of units in the cart
func (s *CartService) Count(ctx context.Context, shopperID int64) (int, error) {
	return s.store.CountCartItems(ctx, shopperID)
}

func (s *CartService) record(operation string, err error) {
	util.CartMutationsTotal.WithLabelValues(operation, failureReason(err)).Inc()
}

// failureReason turns an error into a low-cardinality metric label
func failureReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
