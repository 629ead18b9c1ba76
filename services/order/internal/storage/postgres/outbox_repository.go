package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/konecta/microshop/services/order/internal/outbox"
)

// OutboxRepository stores outgoing events next to the state change that
// produced them. Enqueue participates in the caller's transaction, so an
// event row exists exactly when its order row does.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OutboxRepository) Enqueue(ctx context.Context, exchange, routingKey string, payload []byte) error {
	const stmt = `
INSERT INTO outbox_messages (id, exchange, routing_key, payload, attempts, next_attempt_at, created_at)
VALUES ($1, $2, $3, $4, 0, $5, $5)`

	now := time.Now().UTC()
	if _, err := r.execTx(ctx, stmt, uuid.New(), exchange, routingKey, payload, now); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

// ListDue returns unpublished messages whose retry time has come, locked
// against concurrent relay instances.
func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]outbox.Message, error) {
	const query = `
SELECT id, exchange, routing_key, payload, attempts
FROM outbox_messages
WHERE published_at IS NULL AND next_attempt_at <= $1
ORDER BY created_at
LIMIT $2
FOR UPDATE SKIP LOCKED`

	tx := txFromContext(ctx)
	if tx == nil {
		return nil, fmt.Errorf("list due: must run inside a transaction")
	}

	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []outbox.Message
	for rows.Next() {
		var m outbox.Message
		if err := rows.Scan(&m.ID, &m.Exchange, &m.RoutingKey, &m.Payload, &m.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list due outbox messages: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	const stmt = `UPDATE outbox_messages SET published_at = $2 WHERE id = $1`

	if _, err := r.execTx(ctx, stmt, id, at); err != nil {
		return fmt.Errorf("mark outbox message published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error {
	const stmt = `UPDATE outbox_messages SET attempts = $2, next_attempt_at = $3 WHERE id = $1`

	if _, err := r.execTx(ctx, stmt, id, attempts, next); err != nil {
		return fmt.Errorf("reschedule outbox message: %w", err)
	}
	return nil
}

func (r *OutboxRepository) execTx(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}
