package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/konecta/microshop/internal/clock"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/product/internal/domain"
)

type fakeReservationStore struct {
	stock        map[int64]int
	reservations map[int64]bool
	failStore    error
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{
		stock:        make(map[int64]int),
		reservations: make(map[int64]bool),
	}
}

func (f *fakeReservationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	stock := make(map[int64]int, len(f.stock))
	for k, v := range f.stock {
		stock[k] = v
	}
	reservations := make(map[int64]bool, len(f.reservations))
	for k, v := range f.reservations {
		reservations[k] = v
	}
	if err := fn(ctx); err != nil {
		f.stock = stock
		f.reservations = reservations
		return err
	}
	return nil
}

func (f *fakeReservationStore) InsertReservation(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	if f.failStore != nil {
		return false, f.failStore
	}
	if f.reservations[orderID] {
		return false, nil
	}
	f.reservations[orderID] = true
	return true, nil
}

func (f *fakeReservationStore) DecrementStock(ctx context.Context, productID int64, qty int) error {
	if f.failStore != nil {
		return f.failStore
	}
	stock, ok := f.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if stock < qty {
		return domain.ErrInsufficientStock
	}
	f.stock[productID] = stock - qty
	return nil
}

func TestReserveStockDecrementsEachItem(t *testing.T) {
	t.Parallel()

	store := newFakeReservationStore()
	store.stock[1] = 5
	store.stock[2] = 3
	svc := NewReservationService(store, clock.NewFixed(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))

	ev := events.OrderCreated{
		OrderID: 7,
		UserID:  42,
		Items: []events.OrderCreatedItem{
			{ProductID: 1, Quantity: 2, Price: 9.99},
			{ProductID: 2, Quantity: 1, Price: 5.00},
		},
	}

	outcome, err := svc.ReserveStock(context.Background(), ev)
	if err != nil {
		t.Fatalf("ReserveStock: %v", err)
	}
	if outcome != ReservationApplied {
		t.Fatalf("outcome = %d, want ReservationApplied", outcome)
	}
	if got := store.stock[1]; got != 3 {
		t.Errorf("stock[1] = %d, want 3", got)
	}
	if got := store.stock[2]; got != 2 {
		t.Errorf("stock[2] = %d, want 2", got)
	}
}

func TestReserveStockRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeReservationStore()
	store.stock[1] = 5
	svc := NewReservationService(store, clock.NewSystem())

	ev := events.OrderCreated{
		OrderID: 7,
		UserID:  42,
		Items:   []events.OrderCreatedItem{{ProductID: 1, Quantity: 2, Price: 9.99}},
	}

	if _, err := svc.ReserveStock(context.Background(), ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	outcome, err := svc.ReserveStock(context.Background(), ev)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != ReservationAlreadyDone {
		t.Fatalf("outcome = %d, want ReservationAlreadyDone", outcome)
	}
	if got := store.stock[1]; got != 3 {
		t.Errorf("stock[1] after redelivery = %d, want 3 (decremented once)", got)
	}
}

func TestReserveStockInsufficientRollsBack(t *testing.T) {
	t.Parallel()

	store := newFakeReservationStore()
	store.stock[1] = 5
	store.stock[2] = 1
	svc := NewReservationService(store, clock.NewSystem())

	ev := events.OrderCreated{
		OrderID: 8,
		UserID:  42,
		Items: []events.OrderCreatedItem{
			{ProductID: 1, Quantity: 2, Price: 9.99},
			{ProductID: 2, Quantity: 4, Price: 5.00},
		},
	}

	_, err := svc.ReserveStock(context.Background(), ev)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if got := store.stock[1]; got != 5 {
		t.Errorf("stock[1] = %d, want 5 (rolled back)", got)
	}
	if store.reservations[8] {
		t.Error("reservation recorded despite rollback")
	}

	// The order stays unreserved, so a later delivery can succeed if stock
	// has been replenished.
	store.stock[2] = 10
	outcome, err := svc.ReserveStock(context.Background(), ev)
	if err != nil {
		t.Fatalf("retry after restock: %v", err)
	}
	if outcome != ReservationApplied {
		t.Fatalf("outcome = %d, want ReservationApplied", outcome)
	}
}

func TestReserveStockUnknownProduct(t *testing.T) {
	t.Parallel()

	store := newFakeReservationStore()
	svc := NewReservationService(store, clock.NewSystem())

	ev := events.OrderCreated{
		OrderID: 9,
		UserID:  42,
		Items:   []events.OrderCreatedItem{{ProductID: 99, Quantity: 1, Price: 1.00}},
	}

	_, err := svc.ReserveStock(context.Background(), ev)
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestReserveStockStoreErrorSurfaces(t *testing.T) {
	t.Parallel()

	store := newFakeReservationStore()
	store.failStore = errors.New("connection reset")
	svc := NewReservationService(store, clock.NewSystem())

	ev := events.OrderCreated{
		OrderID: 10,
		UserID:  42,
		Items:   []events.OrderCreatedItem{{ProductID: 1, Quantity: 1, Price: 1.00}},
	}

	if _, err := svc.ReserveStock(context.Background(), ev); err == nil {
		t.Fatal("expected error from failing store")
	}
}
