package broker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "broker_messages_total",
	Help: "Messages fetched per queue, by outcome.",
}, []string{"queue", "outcome"})

// Delivery is one message handed to a handler.
type Delivery struct {
	RoutingKey string
	Body       []byte
}

// HandlerFunc processes a delivery. Delivery is at-least-once: the same
// message may arrive more than once and concurrently on other instances, so
// handlers must be idempotent. A nil return acknowledges the message; an
// error sends it to the dead-letter exchange instead of requeueing it
// forever.
type HandlerFunc func(ctx context.Context, d Delivery) error

// deadLetterer is the slice of Publisher the subscriber needs.
type deadLetterer interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Subscriber binds queues to handlers. Each binding runs its own worker
// goroutine pulling from the queue's consumer group.
type Subscriber struct {
	brokerAddr string
	deadLetter deadLetterer
	dlExchange string
	logger     *log.Logger
	dlBackoff  time.Duration

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
}

func NewSubscriber(brokerAddr, deadLetterExchange string, deadLetter deadLetterer, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.Default()
	}
	return &Subscriber{
		brokerAddr: brokerAddr,
		deadLetter: deadLetter,
		dlExchange: deadLetterExchange,
		logger:     logger,
		dlBackoff:  time.Second,
	}
}

// Subscribe registers a handler for a binding and starts consuming. Meant to
// be called once per binding at process start.
func (s *Subscriber) Subscribe(ctx context.Context, b Binding, handler HandlerFunc) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{s.brokerAddr},
		Topic:    b.Exchange,
		GroupID:  b.Queue,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	s.mu.Lock()
	s.readers = append(s.readers, reader)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume(ctx, reader, b, handler)
	}()
}

// Close stops all workers. Safe to call after the subscribe context is
// cancelled.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	readers := s.readers
	s.readers = nil
	s.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.wg.Wait()
	return firstErr
}

func (s *Subscriber) consume(ctx context.Context, reader *kafka.Reader, b Binding, handler HandlerFunc) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				return
			}
			s.logger.Printf("ERROR fetch queue=%s: %v", b.Queue, err)
			time.Sleep(time.Second)
			continue
		}

		if s.process(ctx, b, handler, msg.Key, msg.Value) {
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				s.logger.Printf("ERROR commit queue=%s: %v", b.Queue, err)
			}
		}
	}
}

// process runs the handler and reports whether the message may be
// acknowledged. Messages whose key does not match the binding belong to
// another queue on the same exchange and are acknowledged untouched. A
// handler error dead-letters the message, retrying the dead-letter write on
// the spot: fetching past an unsettled message would let a later commit on
// the partition advance the group offset over it, losing the event. Only
// context cancellation makes process give up without an acknowledgement.
func (s *Subscriber) process(ctx context.Context, b Binding, handler HandlerFunc, key, body []byte) bool {
	routingKey := string(key)
	if routingKey != b.RoutingKey {
		messagesTotal.WithLabelValues(b.Queue, "skipped").Inc()
		return true
	}

	err := handler(ctx, Delivery{RoutingKey: routingKey, Body: body})
	if err == nil {
		messagesTotal.WithLabelValues(b.Queue, "ok").Inc()
		return true
	}

	s.logger.Printf("ERROR handle queue=%s: %v", b.Queue, err)
	messagesTotal.WithLabelValues(b.Queue, "error").Inc()

	if s.deadLetter == nil {
		// Discard policy: acknowledge so a poison message cannot block the queue.
		return true
	}
	if !s.publishDeadLetter(ctx, b, body) {
		return false
	}
	messagesTotal.WithLabelValues(b.Queue, "dead_lettered").Inc()
	return true
}

// publishDeadLetter keeps writing to the dead-letter exchange until it
// succeeds or the context ends.
func (s *Subscriber) publishDeadLetter(ctx context.Context, b Binding, body []byte) bool {
	for {
		err := s.deadLetter.Publish(ctx, s.dlExchange, b.Queue, body)
		if err == nil {
			return true
		}
		s.logger.Printf("ERROR dead-letter queue=%s: %v", b.Queue, err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.dlBackoff):
		}
	}
}
