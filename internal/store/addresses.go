package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const addressColumns = "id, shopper_id, street, city, postal_code, country, is_primary"

// GetAddress retrieves an address owned by the shopper
func (s *Store) GetAddress(ctx context.Context, id, shopperID int64) (*models.Address, error) {
	var addr models.Address
	err := s.db.GetContext(ctx, &addr, s.db.Rebind(
		"SELECT "+addressColumns+" FROM addresses WHERE id = ? AND shopper_id = ?"), id, shopperID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("address %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListAddresses retrieves a shopper's addresses, primary first
func (s *Store) ListAddresses(ctx context.Context, shopperID int64) ([]models.Address, error) {
	addrs := []models.Address{}
	err := s.db.SelectContext(ctx, &addrs, s.db.Rebind(
		"SELECT "+addressColumns+" FROM addresses WHERE shopper_id = ? ORDER BY is_primary DESC, id"), shopperID)
	return addrs, err
}

// CreateAddress inserts a new address
func (s *Store) CreateAddress(ctx context.Context, addr *models.Address) error {
	return insertAddress(ctx, s.db, addr)
}

func insertAddress(ctx context.Context, q sqlx.ExtContext, addr *models.Address) error {
	query := q.Rebind(`
		INSERT INTO addresses (shopper_id, street, city, postal_code, country, is_primary)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`)

	if err := sqlx.GetContext(ctx, q, &addr.ID, query,
		addr.ShopperID, addr.Street, addr.City, addr.PostalCode, addr.Country, addr.IsPrimary); err != nil {
		return fmt.Errorf("failed to create address: %w", err)
	}
	return nil
}

func getAddressByID(ctx context.Context, q sqlx.ExtContext, id int64) (*models.Address, error) {
	var addr models.Address
	err := sqlx.GetContext(ctx, q, &addr, q.Rebind("SELECT "+addressColumns+" FROM addresses WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
