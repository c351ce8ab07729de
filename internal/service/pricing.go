package service

import (
	"github.com/shopspring/decimal"
)

// ShippingPolicy is the single pricing rule: a flat fee below a subtotal threshold
type ShippingPolicy struct {
	FreeShippingThreshold decimal.Decimal
	Fee                   decimal.Decimal
}

// DefaultShippingPolicy charges 4.99 on subtotals strictly below 50.00
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeShippingThreshold: decimal.RequireFromString("50.00"),
		Fee:                   decimal.RequireFromString("4.99"),
	}
}

// FeeFor returns the shipping fee owed on subtotal; the threshold itself ships free
func (p ShippingPolicy) FeeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(p.FreeShippingThreshold) {
		return p.Fee
	}
	return decimal.Zero
}

// Totals is the price breakdown of a cart or order
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Price computes the totals for a subtotal
func (p ShippingPolicy) Price(subtotal decimal.Decimal) Totals {
	fee := p.FeeFor(subtotal)
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Total:       subtotal.Add(fee),
	}
}
