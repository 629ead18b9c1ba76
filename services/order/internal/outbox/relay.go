// Package outbox forwards events written in the order transaction to the
// broker. The order service never publishes directly: a row in the outbox
// table is the durable record, and this relay drains it, so a broker outage
// delays events instead of losing them.
package outbox

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/konecta/microshop/internal/clock"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox messages successfully published to the broker.",
	})
	publishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "Failed outbox publish attempts.",
	})
)

// Message is one pending event row.
type Message struct {
	ID         uuid.UUID
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error
}

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

type Relay struct {
	store     Store
	publisher Publisher
	clock     clock.Clock
	logger    *log.Logger
	interval  time.Duration
	batchSize int
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
	backoffBase      = time.Second
	backoffCap       = 5 * time.Minute
)

func NewRelay(store Store, publisher Publisher, clk clock.Clock, logger *log.Logger, opts ...RelayOption) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	r := &Relay{
		store:     store,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RelayOption func(*Relay)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize overrides how many rows one pass may claim.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Printf("ERROR outbox pass: %v", err)
			}
		}
	}
}

// RunOnce drains one batch of due messages and returns how many it
// published. Rows that fail to publish stay unpublished and are retried with
// exponential backoff; rows claimed here are invisible to concurrent relays
// through the row locks.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		now := r.clock.Now()
		msgs, err := r.store.ListDue(txCtx, now, r.batchSize)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if err := r.publisher.Publish(ctx, m.Exchange, m.RoutingKey, m.Payload); err != nil {
				publishErrorsTotal.Inc()
				attempts := m.Attempts + 1
				r.logger.Printf("WARN outbox publish id=%s attempts=%d: %v", m.ID, attempts, err)
				if err := r.store.Reschedule(txCtx, m.ID, attempts, now.Add(backoff(attempts))); err != nil {
					return err
				}
				continue
			}
			if err := r.store.MarkPublished(txCtx, m.ID, now); err != nil {
				return err
			}
			publishedTotal.Inc()
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}
