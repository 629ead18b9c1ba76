package app

import (
	"context"
	"time"

	"github.com/konecta/microshop/services/cart/internal/domain"
)

// CartStore is the persistence surface the service needs.
type CartStore interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
	SetTTL(ctx context.Context, userID string, ttl time.Duration) error
	ExtendTTL(ctx context.Context, userID string, additional time.Duration) error
	RemoveTTL(ctx context.Context, userID string) error
}

const (
	// addItemTTL is how long an idle cart survives after the last add.
	addItemTTL = 24 * time.Hour
	// orderPlacedTTL is the extra lifetime a cart gets when its owner
	// places an order, so the cart is still around for follow-up purchases.
	orderPlacedTTL = 7 * 24 * time.Hour
)

type CartService struct {
	store CartStore
}

func NewCartService(store CartStore) *CartService {
	return &CartService{store: store}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrInvalidUserID
	}
	return s.store.Get(ctx, userID)
}

// AddItem merges the item into the cart and refreshes the idle expiry.
func (s *CartService) AddItem(ctx context.Context, userID string, item domain.CartItem) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrInvalidUserID
	}
	if err := item.Validate(); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Merge(item)
	if err := s.store.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	if err := s.store.SetTTL(ctx, userID, addItemTTL); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) (domain.Cart, error) {
	if userID == "" {
		return domain.Cart{}, domain.ErrInvalidUserID
	}
	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Remove(productID)
	if err := s.store.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	return s.store.Delete(ctx, userID)
}

// KeepAliveForOrder extends the cart's lifetime when its owner places an
// order.
func (s *CartService) KeepAliveForOrder(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrInvalidUserID
	}
	return s.store.ExtendTTL(ctx, userID, orderPlacedTTL)
}
