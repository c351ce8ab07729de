package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, shopper_id, status, subtotal, shipping_fee, total_amount,
	shipping_address_id, idempotency_key, created_at, updated_at`

// PlaceOrderParams describes a checkout to be committed
type PlaceOrderParams struct {
	ShopperID      int64
	AddressID      *int64
	NewAddress     *models.Address
	IdempotencyKey string
	// ShippingFee maps the order subtotal to the fee added on top of it.
	ShippingFee func(subtotal decimal.Decimal) decimal.Decimal
}

// PlaceOrder converts the shopper's cart into an order in one transaction:
// lines are re-validated against live products, stock is decremented with a
// conditional update, the order and its price-snapshotted lines are inserted
// and the cart lines are deleted. Nothing is persisted if any step fails.
func (s *Store) PlaceOrder(ctx context.Context, p PlaceOrderParams) (*models.Order, error) {
	var order *models.Order

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()

		cartID, ok, err := touchCart(ctx, tx, p.ShopperID, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrEmptyCart
		}

		var items []models.CartItem
		if err := tx.SelectContext(ctx, &items, tx.Rebind(cartItemsQuery), p.ShopperID); err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}
		if len(items) == 0 {
			return models.ErrEmptyCart
		}

		for _, item := range items {
			if !item.Active {
				return models.Unavailable(item.ProductID, item.Title)
			}
			if item.Stock < item.Quantity {
				return models.Insufficient(item.ProductID, item.Title, item.Stock)
			}
		}

		if s.beforeDecrement != nil {
			if err := s.beforeDecrement(ctx, tx); err != nil {
				return err
			}
		}

		// items are ordered by product id, so concurrent checkouts lock rows in the same order
		lines := make([]models.OrderLine, 0, len(items))
		subtotal := decimal.Zero
		for _, item := range items {
			if err := decrementStock(ctx, tx, item.ProductID, item.Quantity, now); err != nil {
				return err
			}
			line := models.OrderLine{
				ProductID:    item.ProductID,
				ProductTitle: item.Title,
				Quantity:     item.Quantity,
				UnitPrice:    item.UnitPrice,
			}
			subtotal = subtotal.Add(line.LineTotal())
			lines = append(lines, line)
		}

		fee := decimal.Zero
		if p.ShippingFee != nil {
			fee = p.ShippingFee(subtotal)
		}

		address, err := resolveShippingAddress(ctx, tx, p)
		if err != nil {
			return err
		}

		order = &models.Order{
			ShopperID:         p.ShopperID,
			Status:            models.OrderStatusPending,
			Subtotal:          subtotal,
			ShippingFee:       fee,
			TotalAmount:       subtotal.Add(fee),
			ShippingAddressID: &address.ID,
			IdempotencyKey:    p.IdempotencyKey,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		for i := range lines {
			lines[i].OrderID = order.ID
			if err := insertOrderLine(ctx, tx, &lines[i]); err != nil {
				return err
			}
		}
		order.Lines = lines
		order.ShippingAddress = address

		return clearLines(ctx, tx, cartID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// resolveShippingAddress inserts the new address or loads the chosen one,
// which must belong to the shopper.
func resolveShippingAddress(ctx context.Context, tx *sqlx.Tx, p PlaceOrderParams) (*models.Address, error) {
	if p.NewAddress != nil {
		p.NewAddress.ShopperID = p.ShopperID
		if err := insertAddress(ctx, tx, p.NewAddress); err != nil {
			return nil, err
		}
		return p.NewAddress, nil
	}
	if p.AddressID == nil {
		return nil, models.ErrInvalidAddress
	}

	addr, err := getAddressByID(ctx, tx, *p.AddressID)
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	if addr == nil || addr.ShopperID != p.ShopperID {
		return nil, models.ErrInvalidAddress
	}
	return addr, nil
}

func insertOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := tx.Rebind(`
		INSERT INTO orders (shopper_id, status, subtotal, shipping_fee, total_amount,
			shipping_address_id, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := tx.GetContext(ctx, &order.ID, query,
		order.ShopperID, order.Status, order.Subtotal, order.ShippingFee, order.TotalAmount,
		order.ShippingAddressID, order.IdempotencyKey, order.CreatedAt, order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func insertOrderLine(ctx context.Context, tx *sqlx.Tx, line *models.OrderLine) error {
	query := tx.Rebind(`
		INSERT INTO order_lines (order_id, product_id, product_title, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)

	if err := tx.GetContext(ctx, &line.ID, query,
		line.OrderID, line.ProductID, line.ProductTitle, line.Quantity, line.UnitPrice); err != nil {
		return fmt.Errorf("failed to create order line: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order with its lines and shipping address
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, s.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadOrderDetails(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForShopper retrieves an order only if the shopper owns it
func (s *Store) GetOrderForShopper(ctx context.Context, id, shopperID int64) (*models.Order, error) {
	order, err := s.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.ShopperID != shopperID {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return order, nil
}

func (s *Store) loadOrderDetails(ctx context.Context, order *models.Order) error {
	lines, err := s.GetOrderLines(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to get order lines: %w", err)
	}
	order.Lines = lines

	if order.ShippingAddressID != nil {
		addr, err := getAddressByID(ctx, s.db, *order.ShippingAddressID)
		if err != nil {
			return fmt.Errorf("failed to get shipping address: %w", err)
		}
		order.ShippingAddress = addr
	}
	return nil
}

// GetOrderByIdempotencyKey retrieves the order a shopper placed with the given key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, shopperID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, s.db.Rebind(
		"SELECT "+orderColumns+" FROM orders WHERE shopper_id = ? AND idempotency_key = ?"), shopperID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLines retrieves all lines of an order
func (s *Store) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	lines := []models.OrderLine{}
	err := s.db.SelectContext(ctx, &lines, s.db.Rebind(`
		SELECT id, order_id, product_id, product_title, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY id`), orderID)
	return lines, err
}

// GetOrdersByShopperID retrieves a shopper's orders, newest first
func (s *Store) GetOrdersByShopperID(ctx context.Context, shopperID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(
		"SELECT "+orderColumns+" FROM orders WHERE shopper_id = ? ORDER BY created_at DESC, id DESC"), shopperID)
	return orders, err
}

// ListOrders retrieves all orders, optionally filtered by status, newest first
func (s *Store) ListOrders(ctx context.Context, status *models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	if status == nil {
		err := s.db.SelectContext(ctx, &orders,
			"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC")
		return orders, err
	}
	err := s.db.SelectContext(ctx, &orders, s.db.Rebind(
		"SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY created_at DESC, id DESC"), *status)
	return orders, err
}

// UpdateOrderStatus sets any status on an order and returns the previous one
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status models.OrderStatus) (models.OrderStatus, error) {
	var previous models.OrderStatus

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &previous, tx.Rebind("SELECT status FROM orders WHERE id = ?"), orderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(
			"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?"), status, s.now(), orderID)
		return err
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}
