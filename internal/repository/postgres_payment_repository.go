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

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL.
type PostgresPaymentRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository.
func NewPostgresPaymentRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_payment_repository").Logger(),
	}
}

const paymentColumns = `id, ref_order_id, ref_user_id, total_amount, used_point, paid_amount, card_type, card_no, status, transaction_key, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.UserID,
		&p.TotalAmount,
		&p.UsedPoint,
		&p.PaidAmount,
		&p.CardType,
		&p.CardNo,
		&p.Status,
		&p.TransactionKey,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	query := `
		INSERT INTO payment (ref_order_id, ref_user_id, total_amount, used_point, paid_amount, card_type, card_no, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		payment.OrderID,
		payment.UserID,
		payment.TotalAmount,
		payment.UsedPoint,
		payment.PaidAmount,
		payment.CardType,
		payment.CardNo,
		payment.Status,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		r.logger.Error().Err(err).Int64("order_id", payment.OrderID).Msg("failed to create payment")
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (r *PostgresPaymentRepository) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment WHERE ref_order_id = $1 FOR UPDATE`

	payment, err := scanPayment(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "payment for order %d not found", orderID)
		}
		return nil, fmt.Errorf("get payment for update: %w", err)
	}

	return payment, nil
}

func (r *PostgresPaymentRepository) Update(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	query := `
		UPDATE payment
		SET status = $2, total_amount = $3, used_point = $4, paid_amount = $5, transaction_key = $6, updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query,
		payment.ID,
		payment.Status,
		payment.TotalAmount,
		payment.UsedPoint,
		payment.PaidAmount,
		payment.TransactionKey,
	)
	if err != nil {
		r.logger.Error().Err(err).Int64("payment_id", payment.ID).Msg("failed to update payment")
		return fmt.Errorf("update payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "payment %d not found", payment.ID)
	}

	return nil
}

func (r *PostgresPaymentRepository) ListPendingWithKey(ctx context.Context, cutoffSeconds int, limit int) ([]*models.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment
		WHERE status = 'PENDING'
		  AND transaction_key IS NOT NULL
		  AND created_at < NOW() - make_interval(secs => $1)
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoffSeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payments, nil
}

// PostgresCouponRepository implements CouponRepository using PostgreSQL.
type PostgresCouponRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresCouponRepository creates a new PostgreSQL coupon repository.
func NewPostgresCouponRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresCouponRepository {
	return &PostgresCouponRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_coupon_repository").Logger(),
	}
}

func (r *PostgresCouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	query := `
		INSERT INTO coupon (code, type, discount_value, used, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, coupon.Code, coupon.Type, coupon.DiscountValue).
		Scan(&coupon.ID, &coupon.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewAppError(models.ErrorConflict, "coupon %q already issued", coupon.Code)
		}
		return fmt.Errorf("create coupon: %w", err)
	}

	return nil
}

func (r *PostgresCouponRepository) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error) {
	query := `
		SELECT id, code, type, discount_value, used, used_order_id, created_at
		FROM coupon
		WHERE code = $1
		FOR UPDATE
	`

	var c models.Coupon
	err := tx.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.DiscountValue,
		&c.Used,
		&c.UsedOrderID,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "coupon %q not found", code)
		}
		return nil, fmt.Errorf("get coupon for update: %w", err)
	}

	return &c, nil
}

func (r *PostgresCouponRepository) Update(ctx context.Context, tx pgx.Tx, coupon *models.Coupon) error {
	query := `
		UPDATE coupon
		SET used = $2, used_order_id = $3
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query, coupon.ID, coupon.Used, coupon.UsedOrderID)
	if err != nil {
		return fmt.Errorf("update coupon: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "coupon %d not found", coupon.ID)
	}

	return nil
}
