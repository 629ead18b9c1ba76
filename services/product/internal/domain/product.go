package domain

import "github.com/shopspring/decimal"

// Product is catalog data plus the available stock counter the reservation
// consumer decrements.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// Validate checks the fields a client may set.
func (p Product) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}
