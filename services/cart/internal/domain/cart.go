package domain

import "github.com/shopspring/decimal"

// Cart is a user's pending selection. Carts are ephemeral: the store expires
// them unless activity keeps them alive.
type Cart struct {
	UserID string
	Items  []CartItem
}

type CartItem struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Validate checks an item a client wants to add.
func (i CartItem) Validate() error {
	if i.ProductID <= 0 {
		return ErrInvalidProduct
	}
	if i.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if i.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// Merge adds an item to the cart. An item for a product already present
// accumulates quantity and takes the newer price.
func (c *Cart) Merge(item CartItem) {
	for idx, existing := range c.Items {
		if existing.ProductID == item.ProductID {
			c.Items[idx].Quantity += item.Quantity
			c.Items[idx].Price = item.Price
			return
		}
	}
	c.Items = append(c.Items, item)
}

// Remove drops every line for the given product.
func (c *Cart) Remove(productID int64) {
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	c.Items = kept
}
