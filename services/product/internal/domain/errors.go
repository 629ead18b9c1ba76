package domain

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrNameRequired      = errors.New("product name required")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidStock      = errors.New("invalid stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidID         = errors.New("invalid id")
)
