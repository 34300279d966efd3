package service

import "errors"

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrOrderNotFound       = errors.New("order not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrEmptyItems          = errors.New("empty items")
	ErrQuantityInvalid     = errors.New("quantity must be > 0")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrOutOfStock          = errors.New("out of stock")
	ErrAlreadyConfirmed    = errors.New("order already confirmed")
	ErrAlreadyCancelled    = errors.New("order already cancelled")
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")
)
