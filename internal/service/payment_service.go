package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/gateway"
	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// PaymentServiceImpl implements the PaymentService interface
type PaymentServiceImpl struct {
	db          Database
	paymentRepo repository.PaymentRepository
	orderRepo   repository.OrderRepository
	outboxRepo  repository.OutboxRepository
	pgClient    gateway.Client
	callbackURL string
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewPaymentService creates a new payment service instance
func NewPaymentService(
	db Database,
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	pgClient gateway.Client,
	callbackURL string,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) PaymentService {
	return &PaymentServiceImpl{
		db:          db,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		pgClient:    pgClient,
		callbackURL: callbackURL,
		metrics:     metrics,
		logger:      logger.With().Str("component", "payment_service").Logger(),
	}
}

// HandlePaymentRequested creates the payment row and settles it. Point-only
// payments complete synchronously. Card payments dispatch the gateway call
// strictly after the creating transaction committed, so no DB locks are held
// across the network and a rolled-back payment is never charged.
func (s *PaymentServiceImpl) HandlePaymentRequested(ctx context.Context, payload *models.PaymentRequestedPayload) error {
	payment, err := models.NewPayment(payload.OrderID, payload.UserID, payload.TotalAmount, payload.UsedPointAmount)
	if err != nil {
		return err
	}
	payment.CardType = payload.CardType
	payment.CardNo = payload.CardNo

	cardMissing := payload.CardType == nil || payload.CardNo == nil || *payload.CardNo == ""

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch {
	case payment.PaidAmount == 0:
		// Fully covered by points and coupon; no gateway round-trip.
		if err := payment.Succeed(""); err != nil {
			return err
		}
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.appendResultEvent(ctx, tx, payment, ""); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.metrics.PaymentsTotal.WithLabelValues(string(models.PaymentStatusSuccess)).Inc()
		s.logger.Info().Int64("order_id", payment.OrderID).Msg("payment completed by points")
		return nil

	case cardMissing:
		if err := payment.Fail(); err != nil {
			return err
		}
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.appendResultEvent(ctx, tx, payment, "MISSING_CARD"); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.metrics.PaymentsTotal.WithLabelValues(string(models.PaymentStatusFailed)).Inc()
		s.logger.Warn().Int64("order_id", payment.OrderID).Msg("payment failed, card details missing")
		return nil
	}

	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.metrics.PaymentsTotal.WithLabelValues(string(models.PaymentStatusPending)).Inc()

	// The transaction is durable from here; only now touch the network.
	s.dispatchGatewayCall(ctx, payment)
	return nil
}

// dispatchGatewayCall performs the post-commit gateway request and applies
// the outcome. Gateway exceptions leave the payment PENDING with no
// transaction key, so ReconcilePending does not pick it up.
func (s *PaymentServiceImpl) dispatchGatewayCall(ctx context.Context, payment *models.Payment) {
	start := time.Now()
	result, err := s.pgClient.RequestPayment(ctx, &gateway.PaymentRequest{
		OrderID:     payment.OrderID,
		UserID:      payment.UserID,
		CardType:    *payment.CardType,
		CardNo:      *payment.CardNo,
		Amount:      payment.PaidAmount,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		s.metrics.GatewayCallDuration.WithLabelValues("request", "error").Observe(time.Since(start).Seconds())
		s.logger.Error().Err(err).
			Int64("order_id", payment.OrderID).
			Msg("gateway call failed, payment left pending")
		return
	}
	s.metrics.GatewayCallDuration.WithLabelValues("request", "ok").Observe(time.Since(start).Seconds())

	if err := s.applyGatewayResult(ctx, payment.OrderID, result); err != nil {
		s.logger.Error().Err(err).Int64("order_id", payment.OrderID).Msg("failed to apply gateway result")
	}
}

// applyGatewayResult re-reads the payment under lock and transitions it if
// still PENDING. Terminal payments ignore late results.
func (s *PaymentServiceImpl) applyGatewayResult(ctx context.Context, orderID int64, result *gateway.PaymentResult) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, err := s.paymentRepo.GetByOrderIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if payment.IsTerminal() {
		return nil
	}

	if result.Success && result.Status != models.PaymentStatusFailed {
		if result.Status == models.PaymentStatusPending {
			// Gateway accepted but hasn't settled; keep the key for
			// reconciliation.
			payment.TransactionKey = &result.TransactionKey
			if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}
		if err := payment.Succeed(result.TransactionKey); err != nil {
			return err
		}
		if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.appendResultEvent(ctx, tx, payment, ""); err != nil {
			return err
		}
	} else {
		if err := payment.Fail(); err != nil {
			return err
		}
		if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
			return err
		}
		reason := result.Message
		if reason == "" {
			reason = result.ErrorCode
		}
		if reason == "" {
			reason = "payment declined"
		}
		if err := s.appendResultEvent(ctx, tx, payment, reason); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.PaymentsTotal.WithLabelValues(string(payment.Status)).Inc()
	s.logger.Info().
		Int64("order_id", orderID).
		Str("status", string(payment.Status)).
		Msg("gateway result applied")

	return nil
}

// appendResultEvent emits payment.completed or payment.failed for the
// payment's terminal state inside the caller's transaction.
func (s *PaymentServiceImpl) appendResultEvent(ctx context.Context, tx pgx.Tx, payment *models.Payment, reason string) error {
	orderKey := strconv.FormatInt(payment.OrderID, 10)

	event := &models.OutboxEvent{
		AggregateType: models.AggregateTypePayment,
		AggregateID:   orderKey,
		Topic:         models.TopicPaymentEvents,
		PartitionKey:  orderKey,
	}

	switch payment.Status {
	case models.PaymentStatusSuccess:
		event.EventType = models.EventTypePaymentCompleted
		key := ""
		if payment.TransactionKey != nil {
			key = *payment.TransactionKey
		}
		event.Payload = toPayload(models.PaymentCompletedPayload{
			OrderID:        payment.OrderID,
			PaymentID:      payment.ID,
			TransactionKey: key,
		})
	case models.PaymentStatusFailed:
		event.EventType = models.EventTypePaymentFailed
		event.Payload = toPayload(models.PaymentFailedPayload{
			OrderID:           payment.OrderID,
			PaymentID:         payment.ID,
			Reason:            reason,
			RefundPointAmount: payment.UsedPoint,
		})
	default:
		return models.NewAppError(models.ErrorInvalidState, "payment %d has no terminal result to emit", payment.ID)
	}

	return s.outboxRepo.Append(ctx, tx, event)
}

// HandleCouponApplied applies a coupon discount to the order and recomputes
// a PENDING payment's paid amount from the new total.
func (s *PaymentServiceImpl) HandleCouponApplied(ctx context.Context, payload *models.CouponAppliedPayload) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, payload.OrderID)
	if err != nil {
		return err
	}
	if err := order.ApplyDiscount(payload.DiscountAmount); err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			s.logger.Warn().
				Int64("order_id", order.ID).
				Str("status", string(order.Status)).
				Msg("coupon arrived after order reached terminal state")
			return nil
		}
		return err
	}
	order.CouponCode = &payload.CouponCode
	if err := s.orderRepo.UpdateDiscount(ctx, tx, order); err != nil {
		return err
	}

	payment, err := s.paymentRepo.GetByOrderIDForUpdate(ctx, tx, payload.OrderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Payment not created yet; it will pick up the new total.
			return tx.Commit(ctx)
		}
		return err
	}
	if payment.Status == models.PaymentStatusPending {
		if err := payment.Recalculate(order.TotalAmount); err != nil {
			return err
		}
		if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Int64("order_id", payload.OrderID).
		Int64("discount", payload.DiscountAmount).
		Msg("coupon discount applied")

	return nil
}

// ReconcilePending queries the gateway for stale PENDING payments holding a
// transaction key and applies whatever state the gateway reports.
func (s *PaymentServiceImpl) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) error {
	payments, err := s.paymentRepo.ListPendingWithKey(ctx, int(olderThan.Seconds()), limit)
	if err != nil {
		return fmt.Errorf("failed to list pending payments: %w", err)
	}

	for _, payment := range payments {
		start := time.Now()
		result, err := s.pgClient.GetPayment(ctx, payment.UserID, *payment.TransactionKey)
		if err != nil {
			s.metrics.GatewayCallDuration.WithLabelValues("reconcile", "error").Observe(time.Since(start).Seconds())
			s.logger.Error().Err(err).
				Int64("payment_id", payment.ID).
				Msg("reconciliation query failed")
			continue
		}
		s.metrics.GatewayCallDuration.WithLabelValues("reconcile", "ok").Observe(time.Since(start).Seconds())

		if result.Status == models.PaymentStatusPending {
			continue
		}
		if err := s.applyGatewayResult(ctx, payment.OrderID, result); err != nil {
			s.logger.Error().Err(err).
				Int64("payment_id", payment.ID).
				Msg("failed to apply reconciliation result")
		}
	}

	return nil
}
