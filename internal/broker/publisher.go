package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher sends events to exchanges. Messages with the same routing key
// land on the same partition, so per-key ordering is preserved.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(addr string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addr),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Publish sends one event and blocks until the broker acknowledges it.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	msg := kafka.Message{
		Topic: exchange,
		Key:   []byte(routingKey),
		Value: body,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
