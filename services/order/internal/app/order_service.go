package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/internal/clock"
	"github.com/konecta/microshop/internal/events"
	"github.com/konecta/microshop/services/order/internal/domain"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	GetOrderStatus(ctx context.Context, id int64) (domain.OrderStatus, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order, from domain.OrderStatus) error
	TransitionFromCreated(ctx context.Context, id int64, to domain.OrderStatus) (bool, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// OutboxEnqueuer records an outgoing event inside the caller's transaction.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, exchange, routingKey string, payload []byte) error
}

type OrderService struct {
	repo   OrderRepository
	outbox OutboxEnqueuer
	clock  clock.Clock
}

func NewOrderService(repo OrderRepository, outbox OutboxEnqueuer, clk clock.Clock) *OrderService {
	return &OrderService{
		repo:   repo,
		outbox: outbox,
		clock:  clk,
	}
}

type CreateOrderInput struct {
	UserID int64
	Items  []OrderItemInput
}

type OrderItemInput struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// CreateOrder persists a new order and records its OrderCreated event in the
// same transaction. The event is built from the persisted order so it carries
// the generated identifier, and it only becomes publishable once the order
// commit succeeds, never before.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	order, err := domain.NewOrder(in.UserID, itemsFromInput(in.Items), s.clock.Now())
	if err != nil {
		return domain.Order{}, err
	}

	err = s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreateOrder(txCtx, &order); err != nil {
			return err
		}
		payload, err := json.Marshal(orderCreatedEvent(order))
		if err != nil {
			return fmt.Errorf("encode order created event: %w", err)
		}
		return s.outbox.Enqueue(txCtx, events.OrderEventsExchange, events.OrderCreatedKey, payload)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx)
}

type UpdateOrderInput struct {
	Status domain.OrderStatus // empty means unchanged
	Items  []OrderItemInput   // nil means unchanged
}

// UpdateOrder lets the owning service change status or replace the item
// list. Status changes follow the same state machine as the payment
// consumer; items always move through the order, never on their own. The
// write is conditional on the status read here, so a payment outcome
// committed between the read and the write surfaces as a conflict rather
// than being overwritten.
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, in UpdateOrderInput) (domain.Order, error) {
	var result domain.Order

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.repo.GetOrder(txCtx, id)
		if err != nil {
			return err
		}
		readStatus := order.Status

		if in.Status != "" && in.Status != order.Status {
			if !in.Status.Valid() {
				return domain.ErrInvalidStatus
			}
			if !domain.CanTransition(order.Status, in.Status) {
				return domain.ErrIllegalTransition
			}
			order.Status = in.Status
		}

		if in.Items != nil {
			rebuilt, err := domain.NewOrder(order.UserID, itemsFromInput(in.Items), order.OrderDate)
			if err != nil {
				return err
			}
			order.Items = rebuilt.Items
			order.TotalAmount = rebuilt.TotalAmount
		}

		if err := s.repo.UpdateOrder(txCtx, order, readStatus); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// DeleteOrder removes an order. This is a terminal admin action outside the
// event protocol.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	return s.repo.DeleteOrder(ctx, id)
}

// ReconcileOutcome reports what a payment event did to local state.
type ReconcileOutcome int

const (
	OutcomeApplied ReconcileOutcome = iota
	OutcomeAlreadyFinal
	OutcomeOrderNotFound
)

// ApplyPaymentOutcome transitions the order for a payment event. The
// conditional update serializes concurrent deliveries: redelivery after the
// order reached a terminal state is a no-op, and a missing order is reported
// rather than treated as an error, since the order may simply not be visible
// here yet.
func (s *OrderService) ApplyPaymentOutcome(ctx context.Context, orderID int64, success bool) (ReconcileOutcome, error) {
	target := domain.StatusCancelled
	if success {
		target = domain.StatusPaid
	}

	changed, err := s.repo.TransitionFromCreated(ctx, orderID, target)
	if err != nil {
		return 0, err
	}
	if changed {
		return OutcomeApplied, nil
	}

	if _, err := s.repo.GetOrderStatus(ctx, orderID); err != nil {
		if err == domain.ErrOrderNotFound {
			return OutcomeOrderNotFound, nil
		}
		return 0, err
	}
	return OutcomeAlreadyFinal, nil
}

func itemsFromInput(in []OrderItemInput) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(in))
	for _, it := range in {
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return items
}

func orderCreatedEvent(order domain.Order) events.OrderCreated {
	ev := events.OrderCreated{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.InexactFloat64(),
		Items:       make([]events.OrderCreatedItem, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		ev.Items = append(ev.Items, events.OrderCreatedItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.InexactFloat64(),
		})
	}
	return ev
}
