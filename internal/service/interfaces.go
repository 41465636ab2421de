package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/loopershop/commerce-core/internal/models"
)

// Database is the transaction starter used by services; *pgxpool.Pool
// satisfies it, as does a pgxmock pool in tests.
type Database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderService is the write-side orchestrator for the order aggregate.
type OrderService interface {
	// CreateOrder reserves stock and points, persists a PENDING order and
	// appends OrderCreated + PaymentRequested outbox rows, all in one local
	// transaction.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error)

	// CancelOrder compensates a PENDING order: restores stock, refunds
	// points, emits OrderCanceled. Terminal orders are a no-op.
	CancelOrder(ctx context.Context, orderID int64, refundPoints int64, reason string) error

	// OnPaymentResult reconciles an order with a payment outcome.
	OnPaymentResult(ctx context.Context, req *PaymentResultRequest) error

	// GetOrder retrieves an order by id.
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)

	// ListUserOrders pages a user's orders, newest first.
	ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error)
}

// PaymentService handles PaymentRequested events and gateway outcomes.
type PaymentService interface {
	// HandlePaymentRequested creates the Payment row and, for card payments,
	// dispatches the gateway call strictly after the local transaction
	// committed.
	HandlePaymentRequested(ctx context.Context, payload *models.PaymentRequestedPayload) error

	// HandleCouponApplied applies a coupon discount to the order and
	// recomputes a PENDING payment's paid amount.
	HandleCouponApplied(ctx context.Context, payload *models.CouponAppliedPayload) error

	// ReconcilePending re-queries the gateway for stale PENDING payments
	// that hold a transaction key and applies the result.
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) error
}

// LikeService owns the (user, product) like pairs.
type LikeService interface {
	// AddLike inserts a like; duplicate adds are a no-op and emit nothing.
	AddLike(ctx context.Context, userID, productID int64) error

	// RemoveLike deletes a like; absent pairs are a no-op and emit nothing.
	RemoveLike(ctx context.Context, userID, productID int64) error
}

// ProductService is the catalog read side plus product registration.
type ProductService interface {
	// GetProduct reads a product detail through the cache and emits a
	// ProductViewed event.
	GetProduct(ctx context.Context, productID int64) (*ProductDetail, error)

	// ListProducts pages catalog listings through the cache (page 0 only).
	ListProducts(ctx context.Context, req *ListProductsRequest) ([]*ProductDetail, error)

	// CreateProduct registers a product and invalidates listing caches.
	CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error)
}

// UserService covers the domain operations the core needs for points.
type UserService interface {
	// Register creates a user; duplicate user_id is CONFLICT.
	Register(ctx context.Context, req *RegisterUserRequest) (*models.User, error)

	// ChargePoint adds points to a user's balance.
	ChargePoint(ctx context.Context, userID string, amount int64) (*models.User, error)
}

// CouponService applies issued coupons to orders.
type CouponService interface {
	// UseCoupon consumes a coupon for an order and emits CouponApplied.
	UseCoupon(ctx context.Context, orderID int64, couponCode string) error
}

// CreateOrderRequest carries one order placement.
type CreateOrderRequest struct {
	UserID         int64              `validate:"required,gt=0"`
	Items          []OrderItemRequest `validate:"required,min=1,dive"`
	RequestedPoint int64              `validate:"gte=0"`
	CouponCode     *string
	CardType       *models.CardType
	CardNo         *string
}

// OrderItemRequest is one requested order line.
type OrderItemRequest struct {
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"required,gt=0"`
}

// PaymentResultRequest reconciles an order with a payment outcome.
type PaymentResultRequest struct {
	OrderID      int64                `validate:"required,gt=0"`
	Status       models.PaymentStatus `validate:"required"`
	Reason       string
	RefundPoints int64 `validate:"gte=0"`
}

// ListProductsRequest pages catalog listings.
type ListProductsRequest struct {
	BrandID *int64
	Sort    models.ProductSort `validate:"required,oneof=latest price_asc likes_desc"`
	Page    int                `validate:"gte=0"`
	Size    int                `validate:"gt=0,lte=100"`
}

// CreateProductRequest registers a product.
type CreateProductRequest struct {
	Name    string `validate:"required"`
	Price   int64  `validate:"gte=0"`
	Stock   int64  `validate:"gte=0"`
	BrandID int64  `validate:"required,gt=0"`
}

// RegisterUserRequest signs up a user.
type RegisterUserRequest struct {
	UserID    string        `validate:"required,alphanum,max=10"`
	Email     string        `validate:"required,email"`
	BirthDate time.Time     `validate:"required"`
	Gender    models.Gender `validate:"required,oneof=MALE FEMALE"`
}

// ProductDetail is the read-model view of a product with its brand.
type ProductDetail struct {
	Product *models.Product `json:"product"`
	Brand   *models.Brand   `json:"brand,omitempty"`
}
