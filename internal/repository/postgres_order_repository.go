package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_order_repository").Logger(),
	}
}

func (r *PostgresOrderRepository) Create(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (ref_user_id, status, total_amount, discount_amount, coupon_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		order.UserID,
		order.Status,
		order.TotalAmount,
		order.DiscountAmount,
		order.CouponCode,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		r.logger.Error().Err(err).Int64("user_id", order.UserID).Msg("failed to create order")
		return fmt.Errorf("create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_item (ref_order_id, ref_product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery, order.ID, item.ProductID, item.Name, item.Price, item.Quantity); err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

const orderColumns = `id, ref_user_id, status, total_amount, discount_amount, coupon_code, created_at, updated_at`

func (r *PostgresOrderRepository) scanOrder(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, query string, id int64) (*models.Order, error) {
	var order models.Order
	err := q.QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.TotalAmount,
		&order.DiscountAmount,
		&order.CouponCode,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "order %d not found", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemQuery := `
		SELECT ref_product_id, name, price, quantity
		FROM order_item
		WHERE ref_order_id = $1
		ORDER BY id ASC
	`
	rows, err := q.Query(ctx, itemQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &order, nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.scanOrder(ctx, r.pool, query, id)
}

func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOrder(ctx, tx, query, id)
}

func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	query := `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query, order.ID, order.Status)
	if err != nil {
		r.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to update order status")
		return fmt.Errorf("update order status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "order %d not found", order.ID)
	}

	return nil
}

func (r *PostgresOrderRepository) UpdateDiscount(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	query := `
		UPDATE orders
		SET total_amount = $2, discount_amount = $3, coupon_code = $4, updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query, order.ID, order.TotalAmount, order.DiscountAmount, order.CouponCode)
	if err != nil {
		return fmt.Errorf("update order discount: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "order %d not found", order.ID)
	}

	return nil
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	query := `
		SELECT id FROM orders
		WHERE ref_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	orders := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, nil
}
