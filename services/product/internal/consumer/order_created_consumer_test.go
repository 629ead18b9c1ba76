package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/product/internal/app"
	"github.com/konecta/microshop/services/product/internal/domain"
)

type fakeReserver struct {
	calls   []events.OrderCreated
	outcome app.ReservationOutcome
	errs    []error
}

func (f *fakeReserver) ReserveStock(ctx context.Context, ev events.OrderCreated) (app.ReservationOutcome, error) {
	f.calls = append(f.calls, ev)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.outcome, nil
}

func orderCreatedBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(events.OrderCreated{
		OrderID:     7,
		UserID:      42,
		TotalAmount: 19.98,
		Items:       []events.OrderCreatedItem{{ProductID: 1, Quantity: 2, Price: 9.99}},
	})
	require.NoError(t, err)
	return body
}

func newTestConsumer(reserver *fakeReserver) *OrderCreatedConsumer {
	c := NewOrderCreatedConsumer(reserver, nil)
	c.backoff = 0
	return c
}

func TestHandleReservesStock(t *testing.T) {
	reserver := &fakeReserver{outcome: app.ReservationApplied}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       orderCreatedBody(t),
	})
	require.NoError(t, err)
	require.Len(t, reserver.calls, 1)
	assert.Equal(t, int64(7), reserver.calls[0].OrderID)
	assert.Len(t, reserver.calls[0].Items, 1)
}

func TestHandleRedeliveryAcks(t *testing.T) {
	reserver := &fakeReserver{outcome: app.ReservationAlreadyDone}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       orderCreatedBody(t),
	})
	require.NoError(t, err)
}

func TestHandleMalformedBodyErrors(t *testing.T) {
	reserver := &fakeReserver{}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       []byte(`{"userId": 42}`),
	})
	require.Error(t, err)
	assert.Empty(t, reserver.calls, "invalid event must not touch stock")
}

func TestHandleInsufficientStockErrorsWithoutRetry(t *testing.T) {
	reserver := &fakeReserver{errs: []error{domain.ErrInsufficientStock}}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       orderCreatedBody(t),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Len(t, reserver.calls, 1, "domain rejection must not be retried")
}

func TestHandleTransientErrorRetries(t *testing.T) {
	reserver := &fakeReserver{
		outcome: app.ReservationApplied,
		errs:    []error{errors.New("connection reset"), nil},
	}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       orderCreatedBody(t),
	})
	require.NoError(t, err)
	assert.Len(t, reserver.calls, 2)
}

func TestHandlePersistentErrorSurfaces(t *testing.T) {
	boom := errors.New("db down")
	reserver := &fakeReserver{errs: []error{boom, boom, boom, boom}}
	c := newTestConsumer(reserver)

	err := c.Handle(context.Background(), broker.Delivery{
		RoutingKey: events.OrderCreatedKey,
		Body:       orderCreatedBody(t),
	})
	require.ErrorIs(t, err, boom)
	assert.Len(t, reserver.calls, 4, "initial attempt plus three retries")
}
