package domain

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNoItems           = errors.New("order has no items")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStatusConflict    = errors.New("order changed concurrently")
	ErrInvalidID         = errors.New("invalid id")
)
