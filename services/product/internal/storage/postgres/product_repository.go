package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/konecta/microshop/services/product/internal/domain"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ProductRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	const stmt = `
INSERT INTO products (name, description, price, stock)
VALUES ($1, $2, $3, $4)
RETURNING product_id`

	err := r.queryRow(ctx, stmt, p.Name, p.Description, p.Price.String(), p.Stock).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	const query = `
SELECT product_id, name, description, price::text, stock
FROM products
WHERE product_id = $1`

	var p domain.Product
	var price string
	err := r.queryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("parse price: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const query = `
SELECT product_id, name, description, price::text, stock
FROM products
ORDER BY product_id`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, p domain.Product) error {
	const stmt = `
UPDATE products
SET name = $2, description = $3, price = $4, stock = $5
WHERE product_id = $1`

	tag, err := r.exec(ctx, stmt, p.ID, p.Name, p.Description, p.Price.String(), p.Stock)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.exec(ctx, `DELETE FROM products WHERE product_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// InsertReservation records that an order's stock has been taken. The order
// id is the primary key, so a redelivered event inserts nothing and reports
// false.
func (r *ProductRepository) InsertReservation(ctx context.Context, orderID int64, at time.Time) (bool, error) {
	const stmt = `
INSERT INTO stock_reservations (order_id, reserved_at)
VALUES ($1, $2)
ON CONFLICT (order_id) DO NOTHING`

	tag, err := r.exec(ctx, stmt, orderID, at)
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DecrementStock takes qty units if and only if they are available; the
// condition and the decrement are one statement, so concurrent consumers
// cannot oversell.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID int64, qty int) error {
	const stmt = `
UPDATE products
SET stock = stock - $2
WHERE product_id = $1 AND stock >= $2`

	tag, err := r.exec(ctx, stmt, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE product_id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

func (r *ProductRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ProductRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ProductRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
