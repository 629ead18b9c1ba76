// Package consumer reserves stock for orders arriving from the broker.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/product/internal/app"
	"github.com/konecta/microshop/services/product/internal/domain"
)

// StockReserver is the slice of the reservation service the consumer needs.
type StockReserver interface {
	ReserveStock(ctx context.Context, ev events.OrderCreated) (app.ReservationOutcome, error)
}

// OrderCreatedConsumer handles the order.created queue. Redelivery is safe:
// the reservation marker makes a second delivery of the same order a no-op.
type OrderCreatedConsumer struct {
	stock   StockReserver
	logger  *log.Logger
	retries int
	backoff time.Duration
}

func NewOrderCreatedConsumer(stock StockReserver, logger *log.Logger) *OrderCreatedConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &OrderCreatedConsumer{
		stock:   stock,
		logger:  logger,
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
}

func (c *OrderCreatedConsumer) Handle(ctx context.Context, d broker.Delivery) error {
	ev, err := events.DecodeOrderCreated(d.Body)
	if err != nil {
		// Malformed payloads can never succeed; hand them to the dead
		// letter queue instead of crashing or retrying.
		return fmt.Errorf("malformed order event on %s: %w", d.RoutingKey, err)
	}

	outcome, err := c.reserveWithRetry(ctx, ev)
	if err != nil {
		return fmt.Errorf("reserve stock orderId=%d: %w", ev.OrderID, err)
	}

	switch outcome {
	case app.ReservationApplied:
		c.logger.Printf("stock reserved orderId=%d items=%d", ev.OrderID, len(ev.Items))
	case app.ReservationAlreadyDone:
		c.logger.Printf("order event ignored, stock already reserved orderId=%d", ev.OrderID)
	}
	return nil
}

// reserveWithRetry absorbs short store hiccups so a transient error does not
// dead-letter a valid event. Domain rejections are final and surface on the
// first attempt.
func (c *OrderCreatedConsumer) reserveWithRetry(ctx context.Context, ev events.OrderCreated) (app.ReservationOutcome, error) {
	var (
		outcome app.ReservationOutcome
		err     error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		outcome, err = c.stock.ReserveStock(ctx, ev)
		if err == nil {
			return outcome, nil
		}
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrProductNotFound) {
			return 0, err
		}
	}
	return 0, err
}
