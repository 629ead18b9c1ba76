// Package redis stores carts as JSON values keyed by user, with the key TTL
// doing the cart-expiry bookkeeping.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/services/cart/internal/domain"
)

type CartStore struct {
	client *redis.Client
}

func NewCartStore(client *redis.Client) *CartStore {
	return &CartStore{client: client}
}

func key(userID string) string {
	return "cart:" + userID
}

type storedItem struct {
	ProductID int64   `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type storedCart struct {
	UserID string       `json:"userId"`
	Items  []storedItem `json:"items"`
}

// Get returns the user's cart, or an empty one when none is stored.
func (s *CartStore) Get(ctx context.Context, userID string) (domain.Cart, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	var stored storedCart
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}

	cart := domain.Cart{UserID: userID, Items: make([]domain.CartItem, 0, len(stored.Items))}
	for _, it := range stored.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     decimal.NewFromFloat(it.Price),
		})
	}
	return cart, nil
}

// Save writes the cart back without touching any expiry already set on the
// key.
func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	stored := storedCart{UserID: cart.UserID, Items: make([]storedItem, 0, len(cart.Items))}
	for _, it := range cart.Items {
		stored.Items = append(stored.Items, storedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		})
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.client.Set(ctx, key(cart.UserID), raw, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *CartStore) SetTTL(ctx context.Context, userID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key(userID), ttl).Err(); err != nil {
		return fmt.Errorf("set cart ttl: %w", err)
	}
	return nil
}

// ExtendTTL adds to the remaining lifetime of the cart. A cart without an
// expiry gets exactly the additional duration.
func (s *CartStore) ExtendTTL(ctx context.Context, userID string, additional time.Duration) error {
	remaining, err := s.client.TTL(ctx, key(userID)).Result()
	if err != nil {
		return fmt.Errorf("read cart ttl: %w", err)
	}
	ttl := additional
	if remaining > 0 {
		ttl = remaining + additional
	}
	if err := s.client.Expire(ctx, key(userID), ttl).Err(); err != nil {
		return fmt.Errorf("extend cart ttl: %w", err)
	}
	return nil
}

// RemoveTTL makes the cart permanent.
func (s *CartStore) RemoveTTL(ctx context.Context, userID string) error {
	if err := s.client.Persist(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("remove cart ttl: %w", err)
	}
	return nil
}
