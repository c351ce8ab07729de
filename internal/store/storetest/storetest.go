// Package storetest opens throwaway in-memory SQLite stores with the real schema.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var seq atomic.Int64

// New returns a migrated store that is closed when the test ends
func New(t testing.TB) *store.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name, seq.Add(1))

	s, err := store.NewStore(store.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// Product inserts an active product with the given price and stock
func Product(t testing.TB, s *store.Store, title, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		Title:  title,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

// Address inserts an address owned by the shopper
func Address(t testing.TB, s *store.Store, shopperID int64) *models.Address {
	t.Helper()

	a := &models.Address{
		ShopperID:  shopperID,
		Street:     "12 rue de la Paix",
		City:       "Paris",
		PostalCode: "75002",
		Country:    "France",
		IsPrimary:  true,
	}
	require.NoError(t, s.CreateAddress(context.Background(), a))
	return a
}
