package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/services/order/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CreateOrder inserts the order and its items as one unit and fills in the
// generated identifiers.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	const stmt = `
INSERT INTO orders (user_id, order_date, status, total_amount)
VALUES ($1, $2, $3, $4)
RETURNING order_id`

	err := r.queryRow(ctx, stmt,
		order.UserID, order.OrderDate, order.Status, order.TotalAmount.String(),
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4)
RETURNING order_item_id`

	for i := range order.Items {
		it := &order.Items[i]
		err := r.queryRow(ctx, itemStmt, order.ID, it.ProductID, it.Quantity, it.Price.String()).
			Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	const query = `
SELECT order_id, user_id, order_date, status, total_amount::text
FROM orders
WHERE order_id = $1`

	var o domain.Order
	var status, total string
	err := r.queryRow(ctx, query, id).
		Scan(&o.ID, &o.UserID, &o.OrderDate, &status, &total)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("parse total: %w", err)
	}

	if o.Items, err = r.itemsFor(ctx, id); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) GetOrderStatus(ctx context.Context, id int64) (domain.OrderStatus, error) {
	const query = `SELECT status FROM orders WHERE order_id = $1`

	var status string
	if err := r.queryRow(ctx, query, id).Scan(&status); err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrOrderNotFound
		}
		return "", fmt.Errorf("get order status: %w", err)
	}
	return domain.OrderStatus(status), nil
}

func (r *OrderRepository) ListOrders(ctx context.Context) ([]domain.Order, error) {
	const query = `
SELECT order_id, user_id, order_date, status, total_amount::text
FROM orders
ORDER BY order_id`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var o domain.Order
		var status, total string
		if err := rows.Scan(&o.ID, &o.UserID, &o.OrderDate, &status, &total); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		o.Items = []domain.OrderItem{}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	const itemQuery = `
SELECT order_item_id, order_id, product_id, quantity, price::text
FROM order_items
ORDER BY order_item_id`

	itemRows, err := r.query(ctx, itemQuery)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it domain.OrderItem
		var orderID int64
		var price string
		if err := itemRows.Scan(&it.ID, &orderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, it)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return orders, nil
}

// UpdateOrder rewrites the order row and replaces its items. Items never
// change outside their order, so a full replace keeps the aggregate boundary
// in one place. The write is conditional on the status the caller read: if a
// payment consumer moved the order meanwhile, rows-affected is zero and the
// stale write is refused instead of overwriting a terminal state.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order domain.Order, from domain.OrderStatus) error {
	const stmt = `
UPDATE orders
SET status = $2, total_amount = $3
WHERE order_id = $1 AND status = $4`

	tag, err := r.exec(ctx, stmt, order.ID, order.Status, order.TotalAmount.String(), from)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrStatusConflict
	}

	if _, err := r.exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("clear order items: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4)
RETURNING order_item_id`

	for i := range order.Items {
		it := &order.Items[i]
		err := r.queryRow(ctx, itemStmt, order.ID, it.ProductID, it.Quantity, it.Price.String()).
			Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// TransitionFromCreated applies a payment outcome with the database
// serializing concurrent consumers: the row only changes if it is still in
// CREATED, so redelivery and races collapse into rows-affected zero.
func (r *OrderRepository) TransitionFromCreated(ctx context.Context, id int64, to domain.OrderStatus) (bool, error) {
	const stmt = `
UPDATE orders
SET status = $2
WHERE order_id = $1 AND status = $3`

	tag, err := r.exec(ctx, stmt, id, to, domain.StatusCreated)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *OrderRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.exec(ctx, `DELETE FROM orders WHERE order_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	const query = `
SELECT order_item_id, product_id, quantity, price::text
FROM order_items
WHERE order_id = $1
ORDER BY order_item_id`

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var it domain.OrderItem
		var price string
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	return items, nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *OrderRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
