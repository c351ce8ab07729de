package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, st)

	_, err = ParseOrderStatus("EnAttente")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestLineErrorUnwraps(t *testing.T) {
	err := Insufficient(4, "Lamp", 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.False(t, errors.Is(err, ErrProductUnavailable))
	assert.Contains(t, err.Error(), "available 1")

	assert.ErrorIs(t, Unavailable(4, "Lamp"), ErrProductUnavailable)
	assert.ErrorIs(t, &AddressError{Violations: map[string]string{"city": "required"}}, ErrInvalidAddress)
}

func TestLineTotals(t *testing.T) {
	item := CartItem{Quantity: 3, UnitPrice: decimal.RequireFromString("2.50")}
	assert.True(t, item.LineTotal().Equal(decimal.RequireFromString("7.50")))

	order := Order{Lines: []OrderLine{{Quantity: 2}, {Quantity: 5}}}
	assert.Equal(t, 7, order.ItemCount())
}
