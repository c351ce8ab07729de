package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Purchasable reports whether the product can be put in a cart at all
func (p *Product) Purchasable() bool {
	return p != nil && p.Active
}

// Cart is the single server-side cart of a shopper
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	ShopperID int64     `db:"shopper_id" json:"shopper_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is a cart line joined with the live state of its product
type CartItem struct {
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Title     string          `db:"title" json:"title"`
	UnitPrice decimal.Decimal `db:"price" json:"unit_price"`
	Stock     int             `db:"stock" json:"stock"`
	Active    bool            `db:"active" json:"active"`
}

// LineTotal returns quantity × live unit price
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Address is a shipping address owned by a shopper
type Address struct {
	ID         int64  `db:"id" json:"id"`
	ShopperID  int64  `db:"shopper_id" json:"shopper_id"`
	Street     string `db:"street" json:"street"`
	City       string `db:"city" json:"city"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	Country    string `db:"country" json:"country"`
	IsPrimary  bool   `db:"is_primary" json:"is_primary"`
}

// OrderStatus is the fulfillment state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus accepts any known status, case-insensitively
func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range orderStatuses {
		if st == candidate {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// Order represents a placed order. Only Status changes after creation.
type Order struct {
	ID                int64           `db:"id" json:"id"`
	ShopperID         int64           `db:"shopper_id" json:"shopper_id"`
	Status            OrderStatus     `db:"status" json:"status"`
	Subtotal          decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingFee       decimal.Decimal `db:"shipping_fee" json:"shipping_fee"`
	TotalAmount       decimal.Decimal `db:"total_amount" json:"total_amount"`
	ShippingAddressID *int64          `db:"shipping_address_id" json:"shipping_address_id,omitempty"`
	IdempotencyKey    string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`

	Lines           []OrderLine `db:"-" json:"lines,omitempty"`
	ShippingAddress *Address    `db:"-" json:"shipping_address,omitempty"`
}

// ItemCount returns the number of units in the order
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

// OrderLine is an immutable line with the unit price captured at purchase time
type OrderLine struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      int64           `db:"order_id" json:"order_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	ProductTitle string          `db:"product_title" json:"product_title"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// LineTotal returns quantity × snapshotted unit price
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
