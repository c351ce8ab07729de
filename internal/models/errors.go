package models

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to shoppers and admins
var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidAddress     = errors.New("invalid shipping address")
	ErrNotFound           = errors.New("not found")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrProductInUse       = errors.New("product has order lines and can only be deactivated")
	ErrValidation         = errors.New("validation failed")
)

// LineError ties a cart-line failure to the product that caused it
type LineError struct {
	ProductID int64
	Title     string
	Available int
	Err       error
}

func (e *LineError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%s for product %d (%q): available %d", e.Err, e.ProductID, e.Title, e.Available)
	}
	return fmt.Sprintf("%s: product %d (%q)", e.Err, e.ProductID, e.Title)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Unavailable builds a LineError for a missing or deactivated product
func Unavailable(productID int64, title string) *LineError {
	return &LineError{ProductID: productID, Title: title, Err: ErrProductUnavailable}
}

// Insufficient builds a LineError carrying the live stock
func Insufficient(productID int64, title string, available int) *LineError {
	return &LineError{ProductID: productID, Title: title, Available: available, Err: ErrInsufficientStock}
}

// AddressError lists the form fields that made an address unusable
type AddressError struct {
	Violations map[string]string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidAddress, e.Violations)
}

func (e *AddressError) Unwrap() error {
	return ErrInvalidAddress
}
