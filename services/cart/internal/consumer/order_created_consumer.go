// Package consumer keeps carts alive when their owners place orders.
package consumer

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
)

// CartKeeper is the slice of the cart service the consumer needs.
type CartKeeper interface {
	KeepAliveForOrder(ctx context.Context, userID string) error
}

// OrderCreatedConsumer handles the cart copy of the order.created queue.
// Extending a TTL twice for the same order is harmless, so no dedup state is
// kept.
type OrderCreatedConsumer struct {
	carts   CartKeeper
	logger  *log.Logger
	retries int
	backoff time.Duration
}

func NewOrderCreatedConsumer(carts CartKeeper, logger *log.Logger) *OrderCreatedConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &OrderCreatedConsumer{
		carts:   carts,
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

	userID := strconv.FormatInt(ev.UserID, 10)
	if err := c.extendWithRetry(ctx, userID); err != nil {
		return fmt.Errorf("extend cart ttl userId=%s: %w", userID, err)
	}

	c.logger.Printf("cart kept alive userId=%s orderId=%d", userID, ev.OrderID)
	return nil
}

func (c *OrderCreatedConsumer) extendWithRetry(ctx context.Context, userID string) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if err = c.carts.KeepAliveForOrder(ctx, userID); err == nil {
			return nil
		}
	}
	return err
}
