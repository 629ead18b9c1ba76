package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusCreated   OrderStatus = "CREATED"
	StatusPaid      OrderStatus = "PAID"
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further payment outcome may move the order.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

func (s OrderStatus) Valid() bool {
	return s == StatusCreated || s == StatusPaid || s == StatusCancelled
}

// CanTransition reports whether from may legally move to to. The only legal
// moves are out of CREATED; terminal states absorb everything else.
func CanTransition(from, to OrderStatus) bool {
	return from == StatusCreated && to.IsTerminal()
}

// Order is the aggregate root. Items are owned by the order and persisted
// with it as a single unit; they have no identity outside it.
type Order struct {
	ID          int64
	UserID      int64
	OrderDate   time.Time
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Items       []OrderItem
}

type OrderItem struct {
	ID        int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Subtotal is quantity times unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder builds an order ready for persistence: status CREATED, order date
// set, total computed from the items. The total always equals the sum of
// item subtotals at creation time.
func NewOrder(userID int64, items []OrderItem, now time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrNoItems
	}
	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return Order{}, ErrInvalidQuantity
		}
		if it.Price.IsNegative() {
			return Order{}, ErrInvalidPrice
		}
		total = total.Add(it.Subtotal())
	}
	return Order{
		UserID:      userID,
		OrderDate:   now,
		Status:      StatusCreated,
		TotalAmount: total,
		Items:       items,
	}, nil
}
