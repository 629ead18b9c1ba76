// Package consumer applies payment outcomes arriving from the broker to
// local order state.
package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/order/internal/app"
)

// OrderReconciler is the slice of the order service the consumer needs.
type OrderReconciler interface {
	ApplyPaymentOutcome(ctx context.Context, orderID int64, success bool) (app.ReconcileOutcome, error)
}

// PaymentConsumer handles the payment.success and payment.failed queues. It
// is safe under redelivery: the reconciler makes duplicate and conflicting
// deliveries no-ops once the order is terminal.
type PaymentConsumer struct {
	orders  OrderReconciler
	logger  *log.Logger
	retries int
	backoff time.Duration
}

func NewPaymentConsumer(orders OrderReconciler, logger *log.Logger) *PaymentConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &PaymentConsumer{
		orders:  orders,
		logger:  logger,
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
}

func (c *PaymentConsumer) HandleSuccess(ctx context.Context, d broker.Delivery) error {
	return c.handle(ctx, d, true)
}

func (c *PaymentConsumer) HandleFailure(ctx context.Context, d broker.Delivery) error {
	return c.handle(ctx, d, false)
}

func (c *PaymentConsumer) handle(ctx context.Context, d broker.Delivery, success bool) error {
	ev, err := events.DecodePaymentOutcome(d.Body)
	if err != nil {
		// Malformed payloads can never succeed; hand them to the dead
		// letter queue instead of crashing or retrying.
		return fmt.Errorf("malformed payment event on %s: %w", d.RoutingKey, err)
	}

	outcome, err := c.applyWithRetry(ctx, ev.OrderID, success)
	if err != nil {
		return fmt.Errorf("apply payment event orderId=%d: %w", ev.OrderID, err)
	}

	switch outcome {
	case app.OutcomeApplied:
		c.logger.Printf("order updated orderId=%d key=%s", ev.OrderID, d.RoutingKey)
	case app.OutcomeAlreadyFinal:
		c.logger.Printf("payment event ignored, order already final orderId=%d key=%s", ev.OrderID, d.RoutingKey)
	case app.OutcomeOrderNotFound:
		c.logger.Printf("WARN order not found for payment event orderId=%d key=%s", ev.OrderID, d.RoutingKey)
	}
	return nil
}

// applyWithRetry absorbs short store hiccups so a transient error does not
// dead-letter a valid event. Retries are bounded; a persistent failure still
// surfaces to the subscriber.
func (c *PaymentConsumer) applyWithRetry(ctx context.Context, orderID int64, success bool) (app.ReconcileOutcome, error) {
	var (
		outcome app.ReconcileOutcome
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
		outcome, err = c.orders.ApplyPaymentOutcome(ctx, orderID, success)
		if err == nil {
			return outcome, nil
		}
	}
	return 0, err
}
