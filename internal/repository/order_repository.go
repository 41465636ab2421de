package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/loopershop/commerce-core/internal/models"
)

// OrderRepository defines data access for the order aggregate.
type OrderRepository interface {
	// Create inserts a new order with its item snapshots.
	// MUST be called within a transaction.
	Create(ctx context.Context, tx pgx.Tx, order *models.Order) error

	// GetByID retrieves an order with its items.
	// Returns NOT_FOUND if the order doesn't exist.
	GetByID(ctx context.Context, id int64) (*models.Order, error)

	// GetByIDForUpdate retrieves an order with a FOR UPDATE lock.
	// MUST be called within a transaction.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error)

	// UpdateStatus persists a status transition of a locked order row.
	// MUST be called within a transaction.
	UpdateStatus(ctx context.Context, tx pgx.Tx, order *models.Order) error

	// UpdateDiscount persists coupon application results.
	// MUST be called within a transaction.
	UpdateDiscount(ctx context.Context, tx pgx.Tx, order *models.Order) error

	// ListByUser pages a user's orders, newest first.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
}

// PaymentRepository defines data access for the payment aggregate.
type PaymentRepository interface {
	// Create inserts a new payment.
	// MUST be called within a transaction.
	Create(ctx context.Context, tx pgx.Tx, payment *models.Payment) error

	// GetByOrderIDForUpdate retrieves the payment for an order with a
	// FOR UPDATE lock. Returns NOT_FOUND if absent.
	// MUST be called within a transaction.
	GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Payment, error)

	// Update persists status, amounts and transaction key.
	// MUST be called within a transaction.
	Update(ctx context.Context, tx pgx.Tx, payment *models.Payment) error

	// ListPendingWithKey lists PENDING payments older than the cutoff that
	// already hold a gateway transaction key, for reconciliation.
	ListPendingWithKey(ctx context.Context, cutoffSeconds int, limit int) ([]*models.Payment, error)
}

// CouponRepository defines data access for issued coupons.
type CouponRepository interface {
	// GetByCodeForUpdate retrieves a coupon with a FOR UPDATE lock.
	// Returns NOT_FOUND if absent.
	// MUST be called within a transaction.
	GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error)

	// Update persists usage state.
	// MUST be called within a transaction.
	Update(ctx context.Context, tx pgx.Tx, coupon *models.Coupon) error

	// Create issues a coupon.
	Create(ctx context.Context, coupon *models.Coupon) error
}
