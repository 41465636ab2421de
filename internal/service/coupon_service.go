package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/repository"
)

// CouponServiceImpl implements the CouponService interface
type CouponServiceImpl struct {
	db         Database
	couponRepo repository.CouponRepository
	orderRepo  repository.OrderRepository
	outboxRepo repository.OutboxRepository
	logger     zerolog.Logger
}

// NewCouponService creates a new coupon service instance
func NewCouponService(
	db Database,
	couponRepo repository.CouponRepository,
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	logger zerolog.Logger,
) CouponService {
	return &CouponServiceImpl{
		db:         db,
		couponRepo: couponRepo,
		orderRepo:  orderRepo,
		outboxRepo: outboxRepo,
		logger:     logger.With().Str("component", "coupon_service").Logger(),
	}
}

// UseCoupon consumes an issued coupon for an order. The coupon aggregate is
// the only mutable state in the transaction; the order is read as a snapshot
// to compute the discount, and the discount reaches the order through the
// coupon.applied event.
func (s *CouponServiceImpl) UseCoupon(ctx context.Context, orderID int64, couponCode string) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPending {
		return models.NewAppError(models.ErrorInvalidState, "order %d is %s, coupon not applicable", orderID, order.Status)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	coupon, err := s.couponRepo.GetByCodeForUpdate(ctx, tx, couponCode)
	if err != nil {
		return err
	}

	discount, err := models.Discount(order.TotalAmount, coupon.Type, coupon.DiscountValue)
	if err != nil {
		return err
	}
	if err := coupon.Use(orderID); err != nil {
		return err
	}
	if err := s.couponRepo.Update(ctx, tx, coupon); err != nil {
		return err
	}

	orderKey := strconv.FormatInt(orderID, 10)
	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeCoupon,
		AggregateID:   orderKey,
		EventType:     models.EventTypeCouponApplied,
		Topic:         models.TopicCouponEvents,
		PartitionKey:  orderKey,
		Payload: toPayload(models.CouponAppliedPayload{
			OrderID:        orderID,
			CouponCode:     couponCode,
			DiscountAmount: discount,
		}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Int64("order_id", orderID).
		Str("coupon_code", couponCode).
		Int64("discount", discount).
		Msg("coupon used")

	return nil
}
