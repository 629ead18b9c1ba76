package domain

import "errors"

var (
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidProduct  = errors.New("invalid product id")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
)
