package app

import (
	"context"
	"fmt"
	"time"

	"github.com/konecta/microshop/internal/clock"
	"github.com/konecta/microshop/internal/events"
)

// ReservationStore is the slice of the repository the reservation flow
// needs. The reservation marker and the decrements share one transaction.
type ReservationStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertReservation(ctx context.Context, orderID int64, at time.Time) (bool, error)
	DecrementStock(ctx context.Context, productID int64, qty int) error
}

// ReservationOutcome reports what an OrderCreated event did to stock.
type ReservationOutcome int

const (
	ReservationApplied ReservationOutcome = iota
	ReservationAlreadyDone
)

type ReservationService struct {
	store ReservationStore
	clock clock.Clock
}

func NewReservationService(store ReservationStore, clk clock.Clock) *ReservationService {
	return &ReservationService{store: store, clock: clk}
}

// ReserveStock decrements stock for every item of a new order, exactly once
// per order id. The reservation row is inserted first inside the same
// transaction: a redelivered event finds the row and changes nothing, and a
// failed decrement rolls the row back so nothing is half-reserved.
func (s *ReservationService) ReserveStock(ctx context.Context, ev events.OrderCreated) (ReservationOutcome, error) {
	outcome := ReservationApplied

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		inserted, err := s.store.InsertReservation(txCtx, ev.OrderID, s.clock.Now())
		if err != nil {
			return err
		}
		if !inserted {
			outcome = ReservationAlreadyDone
			return nil
		}
		for _, item := range ev.Items {
			if err := s.store.DecrementStock(txCtx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("reserve productId=%d quantity=%d: %w", item.ProductID, item.Quantity, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}
