package service

import "errors"

var (
	// ErrInsufficientStock is the business-rule rejection: the requested
	// amount is above what the stock service reports.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotFound      = errors.New("item not found in cart")
)
