package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/konecta/microshop/internal/broker"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/cart/internal/app"
	"github.com/konecta/microshop/services/cart/internal/consumer"
	storageredis "github.com/konecta/microshop/services/cart/internal/storage/redis"
	transporthttp "github.com/konecta/microshop/services/cart/internal/transport/http"
)

const (
	defaultPort       = "8083"
	defaultRedisAddr  = "localhost:6379"
	defaultBrokerAddr = "localhost:9092"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	logger := log.Default()

	port := envOr(logger, "PORT", defaultPort)
	redisAddr := envOr(logger, "REDIS_ADDR", defaultRedisAddr)
	brokerAddr := envOr(logger, "BROKER_ADDR", defaultBrokerAddr)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer func() { _ = client.Close() }()

	if err := client.Ping(startupCtx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// The process must not serve traffic with a half-initialized topology.
	topology := broker.Topology{
		Exchanges: []broker.Exchange{
			{Name: events.OrderEventsExchange},
			{Name: events.DeadLetterExchange},
		},
		Bindings: []broker.Binding{
			{Exchange: events.OrderEventsExchange, RoutingKey: events.OrderCreatedKey, Queue: events.CartOrderCreatedQueue},
		},
	}
	if err := broker.Declare(startupCtx, brokerAddr, topology); err != nil {
		log.Fatalf("declare topology: %v", err)
	}

	cartSvc := app.NewCartService(storageredis.NewCartStore(client))

	publisher := broker.NewPublisher(brokerAddr)
	defer publisher.Close()

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	orderConsumer := consumer.NewOrderCreatedConsumer(cartSvc, logger)
	subscriber := broker.NewSubscriber(brokerAddr, events.DeadLetterExchange, publisher, logger)
	subscriber.Subscribe(runCtx, topology.Bindings[0], orderConsumer.Handle)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: transporthttp.NewRouter(cartSvc, logger),
	}

	log.Printf("cart service listening on :%s", port)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-stopCtx.Done():
		log.Printf("shutdown signal received, stopping")
	}

	stopWorkers()
	if err := subscriber.Close(); err != nil {
		log.Printf("subscriber close error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("cart service stopped")
}

func envOr(logger *log.Logger, key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	logger.Printf("WARN: %s not set, using default %s", key, fallback)
	return fallback
}
