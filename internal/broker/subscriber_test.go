package broker

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDeadLetter struct {
	published []publishedMsg
	err       error
	failures  int
	attempts  int
}

type publishedMsg struct {
	exchange   string
	routingKey string
	body       string
}

func (f *fakeDeadLetter) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMsg{exchange, routingKey, string(body)})
	return nil
}

func TestSubscriberProcess(t *testing.T) {
	t.Parallel()

	binding := Binding{Exchange: "payment.events", RoutingKey: "payment.success", Queue: "payment.success.queue"}

	t.Run("matching key reaches the handler and is acked", func(t *testing.T) {
		s := NewSubscriber("localhost:9092", "dead.letters", &fakeDeadLetter{}, log.Default())

		var got Delivery
		ack := s.process(context.Background(), binding, func(_ context.Context, d Delivery) error {
			got = d
			return nil
		}, []byte("payment.success"), []byte(`{"orderId":1}`))

		require.True(t, ack)
		require.Equal(t, "payment.success", got.RoutingKey)
		require.JSONEq(t, `{"orderId":1}`, string(got.Body))
	})

	t.Run("non-matching key is acked without invoking the handler", func(t *testing.T) {
		s := NewSubscriber("localhost:9092", "dead.letters", &fakeDeadLetter{}, log.Default())

		called := false
		ack := s.process(context.Background(), binding, func(context.Context, Delivery) error {
			called = true
			return nil
		}, []byte("payment.failed"), []byte(`{"orderId":1}`))

		require.True(t, ack)
		require.False(t, called)
	})

	t.Run("handler error dead-letters keyed by queue and acks", func(t *testing.T) {
		dl := &fakeDeadLetter{}
		s := NewSubscriber("localhost:9092", "dead.letters", dl, log.Default())

		ack := s.process(context.Background(), binding, func(context.Context, Delivery) error {
			return errors.New("boom")
		}, []byte("payment.success"), []byte(`{"orderId":1}`))

		require.True(t, ack)
		require.Len(t, dl.published, 1)
		require.Equal(t, "dead.letters", dl.published[0].exchange)
		require.Equal(t, "payment.success.queue", dl.published[0].routingKey)
		require.JSONEq(t, `{"orderId":1}`, dl.published[0].body)
	})

	t.Run("dead-letter publish is retried on the same message", func(t *testing.T) {
		dl := &fakeDeadLetter{failures: 2}
		s := NewSubscriber("localhost:9092", "dead.letters", dl, log.Default())
		s.dlBackoff = time.Millisecond

		ack := s.process(context.Background(), binding, func(context.Context, Delivery) error {
			return errors.New("boom")
		}, []byte("payment.success"), []byte(`{"orderId":1}`))

		require.True(t, ack)
		require.Equal(t, 3, dl.attempts)
		require.Len(t, dl.published, 1)
	})

	t.Run("only cancellation abandons a failed dead-letter write, unacked", func(t *testing.T) {
		dl := &fakeDeadLetter{err: errors.New("broker down")}
		s := NewSubscriber("localhost:9092", "dead.letters", dl, log.Default())
		s.dlBackoff = time.Millisecond

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ack := s.process(ctx, binding, func(context.Context, Delivery) error {
			return errors.New("boom")
		}, []byte("payment.success"), []byte(`{"orderId":1}`))

		require.False(t, ack)
	})

	t.Run("without a dead letter publisher a poison message is discarded", func(t *testing.T) {
		s := NewSubscriber("localhost:9092", "", nil, log.Default())

		ack := s.process(context.Background(), binding, func(context.Context, Delivery) error {
			return errors.New("boom")
		}, []byte("payment.success"), []byte("not json"))

		require.True(t, ack)
	})
}
