// Package broker routes domain events between services. It keeps the
// exchange / routing key / queue vocabulary of the wire contract and maps it
// onto Kafka: an exchange is a topic, the routing key travels as the message
// key, and a queue is a consumer group that only handles matching keys.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Exchange is a durable topic an event family is published to.
type Exchange struct {
	Name       string
	Partitions int
}

// Binding subscribes a queue to one routing key of an exchange.
type Binding struct {
	Exchange   string
	RoutingKey string
	Queue      string
}

// Topology is the static routing table of one process. It is assembled once
// at startup and declared before any traffic is served.
type Topology struct {
	Exchanges []Exchange
	Bindings  []Binding
}

const defaultPartitions = 1

// Declare creates every exchange of the topology on the broker. Declaration
// is idempotent: an exchange that already exists is not an error, so repeated
// startups converge to the same topology. An unreachable broker is an error
// and callers are expected to fail fast on it.
func Declare(ctx context.Context, addr string, t Topology) error {
	client := &kafka.Client{Addr: kafka.TCP(addr)}

	configs := make([]kafka.TopicConfig, 0, len(t.Exchanges))
	for _, ex := range t.Exchanges {
		partitions := ex.Partitions
		if partitions <= 0 {
			partitions = defaultPartitions
		}
		configs = append(configs, kafka.TopicConfig{
			Topic:             ex.Name,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{Topics: configs})
	if err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	for name, topicErr := range resp.Errors {
		if topicErr != nil && !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("declare exchange %s: %w", name, topicErr)
		}
	}
	return nil
}
