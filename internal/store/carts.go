package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCart retrieves the shopper's cart, or nil if none was created yet
func (s *Store) GetCart(ctx context.Context, shopperID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, s.db.Rebind(
		"SELECT id, shopper_id, created_at, updated_at FROM carts WHERE shopper_id = ?"), shopperID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// ensureCart creates the cart on first use and bumps its modification time
func ensureCart(ctx context.Context, tx *sqlx.Tx, shopperID int64, now time.Time) (int64, error) {
	var cartID int64
	err := tx.GetContext(ctx, &cartID, tx.Rebind(`
		INSERT INTO carts (shopper_id, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (shopper_id) DO UPDATE SET updated_at = excluded.updated_at
		RETURNING id`),
		shopperID, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure cart: %w", err)
	}
	return cartID, nil
}

// touchCart bumps the modification time of an existing cart and returns its id.
// It also takes the row lock that serializes checkouts of the same cart.
func touchCart(ctx context.Context, tx *sqlx.Tx, shopperID int64, now time.Time) (int64, bool, error) {
	var cartID int64
	err := tx.GetContext(ctx, &cartID, tx.Rebind(
		"UPDATE carts SET updated_at = ? WHERE shopper_id = ? RETURNING id"), now, shopperID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to lock cart: %w", err)
	}
	return cartID, true, nil
}

func lineQuantity(ctx context.Context, tx *sqlx.Tx, cartID, productID int64) (int, error) {
	var qty int
	err := tx.GetContext(ctx, &qty, tx.Rebind(
		"SELECT quantity FROM cart_lines WHERE cart_id = ? AND product_id = ?"), cartID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func upsertLine(ctx context.Context, tx *sqlx.Tx, cartID, productID int64, quantity int, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO cart_lines (cart_id, product_id, quantity, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = excluded.quantity`),
		cartID, productID, quantity, now)
	if err != nil {
		return fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return nil
}

// checkPurchasable loads a product for a cart mutation and checks the wanted quantity against stock
func checkPurchasable(ctx context.Context, tx *sqlx.Tx, productID int64, wanted int) error {
	product, err := getProduct(ctx, tx, productID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Unavailable(productID, "")
	}
	if err != nil {
		return err
	}
	if !product.Purchasable() {
		return models.Unavailable(productID, product.Title)
	}
	if wanted > product.Stock {
		return models.Insufficient(productID, product.Title, product.Stock)
	}
	return nil
}

// AddToCart adds quantity units of a product, merging with an existing line
func (s *Store) AddToCart(ctx context.Context, shopperID, productID int64, quantity int) (int, error) {
	if quantity < 1 {
		return 0, models.ErrInvalidQuantity
	}

	var total int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()

		cartID, err := ensureCart(ctx, tx, shopperID, now)
		if err != nil {
			return err
		}

		existing, err := lineQuantity(ctx, tx, cartID, productID)
		if err != nil {
			return fmt.Errorf("failed to read cart line: %w", err)
		}

		total = existing + quantity
		if err := checkPurchasable(ctx, tx, productID, total); err != nil {
			return err
		}

		return upsertLine(ctx, tx, cartID, productID, total, now)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SetCartQuantity replaces the quantity of a line; callers route quantity <= 0 to RemoveFromCart
func (s *Store) SetCartQuantity(ctx context.Context, shopperID, productID int64, quantity int) error {
	if quantity < 1 {
		return models.ErrInvalidQuantity
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkPurchasable(ctx, tx, productID, quantity); err != nil {
			return err
		}

		now := s.now()
		cartID, err := ensureCart(ctx, tx, shopperID, now)
		if err != nil {
			return err
		}
		return upsertLine(ctx, tx, cartID, productID, quantity, now)
	})
}

// RemoveFromCart deletes a line; removing an absent line is a no-op
func (s *Store) RemoveFromCart(ctx context.Context, shopperID, productID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		cartID, ok, err := touchCart(ctx, tx, shopperID, s.now())
		if err != nil || !ok {
			return err
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(
			"DELETE FROM cart_lines WHERE cart_id = ? AND product_id = ?"), cartID, productID)
		if err != nil {
			return fmt.Errorf("failed to remove cart line: %w", err)
		}
		return nil
	})
}

// ClearCart deletes every line of the shopper's cart, keeping the cart itself
func (s *Store) ClearCart(ctx context.Context, shopperID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		cartID, ok, err := touchCart(ctx, tx, shopperID, s.now())
		if err != nil || !ok {
			return err
		}
		return clearLines(ctx, tx, cartID)
	})
}

func clearLines(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM cart_lines WHERE cart_id = ?"), cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

const cartItemsQuery = `
	SELECT l.product_id, l.quantity, p.title, p.price, p.stock, p.active
	FROM cart_lines l
	JOIN carts c ON c.id = l.cart_id
	JOIN products p ON p.id = l.product_id
	WHERE c.shopper_id = ?
	ORDER BY l.product_id`

// GetCartItems returns the cart lines joined with live product data
func (s *Store) GetCartItems(ctx context.Context, shopperID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(cartItemsQuery), shopperID); err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return items, nil
}

// CountCartItems returns the number of units in the cart
func (s *Store) CountCartItems(ctx context.Context, shopperID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COALESCE(SUM(l.quantity), 0)
		FROM cart_lines l
		JOIN carts c ON c.id = l.cart_id
		WHERE c.shopper_id = ?`), shopperID)
	return count, err
}
