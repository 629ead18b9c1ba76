package consumer

import (
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/order/internal/app"
)

type reconcileCall struct {
	orderID int64
	success bool
}

type fakeReconciler struct {
	outcome  app.ReconcileOutcome
	errs     []error // consumed per call, nil entries mean success
	calls    []reconcileCall
}

func (f *fakeReconciler) ApplyPaymentOutcome(_ context.Context, orderID int64, success bool) (app.ReconcileOutcome, error) {
	f.calls = append(f.calls, reconcileCall{orderID: orderID, success: success})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.outcome, nil
}

func newConsumer(r *fakeReconciler) *PaymentConsumer {
	c := NewPaymentConsumer(r, log.Default())
	c.backoff = 0
	return c
}

func TestPaymentConsumer(t *testing.T) {
	t.Parallel()

	t.Run("success event applies a PAID transition", func(t *testing.T) {
		rec := &fakeReconciler{outcome: app.OutcomeApplied}
		c := newConsumer(rec)

		err := c.HandleSuccess(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentSuccessKey,
			Body:       []byte(`{"orderId":7}`),
		})
		require.NoError(t, err)
		require.Equal(t, []reconcileCall{{orderID: 7, success: true}}, rec.calls)
	})

	t.Run("failure event applies a CANCELLED transition", func(t *testing.T) {
		rec := &fakeReconciler{outcome: app.OutcomeApplied}
		c := newConsumer(rec)

		err := c.HandleFailure(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentFailedKey,
			Body:       []byte(`{"orderId":7}`),
		})
		require.NoError(t, err)
		require.Equal(t, []reconcileCall{{orderID: 7, success: false}}, rec.calls)
	})

	t.Run("unknown order acks without error", func(t *testing.T) {
		rec := &fakeReconciler{outcome: app.OutcomeOrderNotFound}
		c := newConsumer(rec)

		err := c.HandleFailure(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentFailedKey,
			Body:       []byte(`{"orderId":999}`),
		})
		require.NoError(t, err)
	})

	t.Run("already-final order acks without error", func(t *testing.T) {
		rec := &fakeReconciler{outcome: app.OutcomeAlreadyFinal}
		c := newConsumer(rec)

		err := c.HandleSuccess(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentSuccessKey,
			Body:       []byte(`{"orderId":7}`),
		})
		require.NoError(t, err)
	})

	t.Run("missing orderId surfaces for dead-lettering without touching state", func(t *testing.T) {
		rec := &fakeReconciler{}
		c := newConsumer(rec)

		err := c.HandleSuccess(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentSuccessKey,
			Body:       []byte(`{"paymentId":9}`),
		})
		require.ErrorIs(t, err, events.ErrMissingOrderID)
		require.Empty(t, rec.calls)
	})

	t.Run("transient store error is retried then succeeds", func(t *testing.T) {
		rec := &fakeReconciler{
			outcome: app.OutcomeApplied,
			errs:    []error{errors.New("store down"), nil},
		}
		c := newConsumer(rec)

		err := c.HandleSuccess(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentSuccessKey,
			Body:       []byte(`{"orderId":7}`),
		})
		require.NoError(t, err)
		require.Len(t, rec.calls, 2)
	})

	t.Run("persistent store error surfaces after bounded retries", func(t *testing.T) {
		boom := errors.New("store down")
		rec := &fakeReconciler{errs: []error{boom, boom, boom, boom, boom}}
		c := newConsumer(rec)

		err := c.HandleSuccess(context.Background(), broker.Delivery{
			RoutingKey: events.PaymentSuccessKey,
			Body:       []byte(`{"orderId":7}`),
		})
		require.ErrorIs(t, err, boom)
		require.Len(t, rec.calls, 4) // initial attempt + 3 retries
	})
}
