// Package events defines the wire format and topology names shared by all
// services. Field names are the cross-service contract: producers and
// consumers in any language must agree on them without sharing code.
package events

import (
	"encoding/json"
	"errors"
	"time"
)

// Topology names. These must match across services; changing one breaks
// interoperability with every deployed consumer.
const (
	OrderEventsExchange   = "order.events"
	OrderCreatedKey       = "order.created"
	OrderCreatedQueue     = "order.created.queue"
	CartOrderCreatedQueue = "cart.order.created.queue"

	PaymentEventsExchange = "payment.events"
	PaymentSuccessKey     = "payment.success"
	PaymentFailedKey      = "payment.failed"
	PaymentSuccessQueue   = "payment.success.queue"
	PaymentFailedQueue    = "payment.failed.queue"

	DeadLetterExchange = "dead.letters"
)

var (
	ErrMissingOrderID = errors.New("event missing orderId")
	ErrMissingUserID  = errors.New("event missing userId")
	ErrMissingAmount  = errors.New("event missing totalAmount")
	ErrInvalidItem    = errors.New("event item missing productId, quantity or price")
)

// OrderCreated announces a newly persisted order. It is self-describing: a
// consumer must never call back into the order service to interpret it.
type OrderCreated struct {
	OrderID     int64              `json:"orderId"`
	UserID      int64              `json:"userId"`
	TotalAmount float64            `json:"totalAmount"`
	Items       []OrderCreatedItem `json:"items"`
}

type OrderCreatedItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// PaymentOutcome carries the order a payment concerns. The routing key, not a
// payload field, tells success from failure. Everything beyond OrderID is
// metadata from the payment service, carried for logging only.
type PaymentOutcome struct {
	OrderID     int64
	PaymentID   int64
	UserID      int64
	Amount      float64
	Status      string
	PaymentDate time.Time
}

// DecodeOrderCreated parses and validates an order.created payload. Absent
// fields are treated as absent, not zero: an event without an order id, user
// id or amount is malformed even if the JSON itself is well formed.
func DecodeOrderCreated(body []byte) (OrderCreated, error) {
	var raw struct {
		OrderID     *int64  `json:"orderId"`
		UserID      *int64  `json:"userId"`
		TotalAmount *float64 `json:"totalAmount"`
		Items       []struct {
			ProductID *int64   `json:"productId"`
			Quantity  *int     `json:"quantity"`
			Price     *float64 `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderCreated{}, err
	}
	if raw.OrderID == nil {
		return OrderCreated{}, ErrMissingOrderID
	}
	if raw.UserID == nil {
		return OrderCreated{}, ErrMissingUserID
	}
	if raw.TotalAmount == nil {
		return OrderCreated{}, ErrMissingAmount
	}

	ev := OrderCreated{
		OrderID:     *raw.OrderID,
		UserID:      *raw.UserID,
		TotalAmount: *raw.TotalAmount,
		Items:       make([]OrderCreatedItem, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		if it.ProductID == nil || it.Quantity == nil || it.Price == nil || *it.Quantity <= 0 {
			return OrderCreated{}, ErrInvalidItem
		}
		ev.Items = append(ev.Items, OrderCreatedItem{
			ProductID: *it.ProductID,
			Quantity:  *it.Quantity,
			Price:     *it.Price,
		})
	}
	return ev, nil
}

// DecodePaymentOutcome parses a payment event payload. Only orderId is
// required; the rest is optional metadata.
func DecodePaymentOutcome(body []byte) (PaymentOutcome, error) {
	var raw struct {
		OrderID     *int64    `json:"orderId"`
		PaymentID   int64     `json:"paymentId"`
		UserID      int64     `json:"userId"`
		Amount      float64   `json:"amount"`
		Status      string    `json:"status"`
		PaymentDate time.Time `json:"paymentDate"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return PaymentOutcome{}, err
	}
	if raw.OrderID == nil {
		return PaymentOutcome{}, ErrMissingOrderID
	}
	return PaymentOutcome{
		OrderID:     *raw.OrderID,
		PaymentID:   raw.PaymentID,
		UserID:      raw.UserID,
		Amount:      raw.Amount,
		Status:      raw.Status,
		PaymentDate: raw.PaymentDate,
	}, nil
}
