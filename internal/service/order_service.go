package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// outboxRetryAttempts bounds retries of a business transaction that lost the
// per-aggregate outbox version race.
const outboxRetryAttempts = 3

// OrderServiceImpl implements the OrderService interface
type OrderServiceImpl struct {
	db          Database
	userRepo    repository.UserRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	outboxRepo  repository.OutboxRepository
	metrics     *observability.Metrics
	logger      zerolog.Logger
	validator   *validator.Validate
}

// NewOrderService creates a new order service instance
func NewOrderService(
	db Database,
	userRepo repository.UserRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	outboxRepo repository.OutboxRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) OrderService {
	return &OrderServiceImpl{
		db:          db,
		userRepo:    userRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		metrics:     metrics,
		logger:      logger.With().Str("component", "order_service").Logger(),
		validator:   validator.New(),
	}
}

// CreateOrder reserves stock and points and persists the order plus its
// outbox rows in one local transaction. If any step fails, every reservation
// rolls back.
func (s *OrderServiceImpl) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	start := time.Now()

	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewAppError(models.ErrorBadRequest, "validation failed: %v", err)
	}

	var order *models.Order
	var err error
	for attempt := 0; attempt < outboxRetryAttempts; attempt++ {
		order, err = s.createOrderTx(ctx, req)
		if err == nil || !errors.Is(err, models.ErrConflict) {
			break
		}
		s.logger.Warn().Int("attempt", attempt+1).Msg("retrying order creation after outbox version race")
	}
	if err != nil {
		s.metrics.OrdersCreatedTotal.WithLabelValues("failure").Inc()
		s.metrics.OrderPlacementDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		return nil, err
	}

	s.metrics.OrdersCreatedTotal.WithLabelValues("success").Inc()
	s.metrics.OrderPlacementDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	s.logger.Info().
		Int64("order_id", order.ID).
		Int64("user_id", order.UserID).
		Int64("total_amount", order.TotalAmount).
		Msg("order created")

	return order, nil
}

func (s *OrderServiceImpl) createOrderTx(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Single-row pessimistic lock on the user, then product locks in
	// ascending id order.
	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	quantities := make(map[int64]int64, len(req.Items))
	ids := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := s.productRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(products))
	for _, product := range products {
		quantity := quantities[product.ID]
		if err := product.DecreaseStock(quantity); err != nil {
			return nil, err
		}
		if err := s.productRepo.UpdateStock(ctx, tx, product.ID, product.Stock); err != nil {
			return nil, err
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  quantity,
		})
	}

	order, err := models.NewOrder(user.ID, items)
	if err != nil {
		return nil, err
	}
	order.CouponCode = req.CouponCode
	subtotal := order.TotalAmount

	usedPoint := req.RequestedPoint
	if user.Point.Balance < usedPoint {
		usedPoint = user.Point.Balance
	}
	if subtotal < usedPoint {
		usedPoint = subtotal
	}
	newPoint, err := user.Point.Subtract(usedPoint)
	if err != nil {
		return nil, err
	}
	user.Point = newPoint
	if err := s.userRepo.UpdatePoint(ctx, tx, user.ID, user.Point.Balance); err != nil {
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	itemPayloads := make([]models.OrderItemPayload, 0, len(items))
	for _, item := range items {
		itemPayloads = append(itemPayloads, models.OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	orderKey := strconv.FormatInt(order.ID, 10)

	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeOrder,
		AggregateID:   orderKey,
		EventType:     models.EventTypeOrderCreated,
		Topic:         models.TopicOrderEvents,
		PartitionKey:  orderKey,
		Payload: toPayload(models.OrderCreatedPayload{
			OrderID:         order.ID,
			UserID:          user.ID,
			Subtotal:        subtotal,
			UsedPointAmount: usedPoint,
			Items:           itemPayloads,
		}),
	}); err != nil {
		return nil, err
	}

	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeOrder,
		AggregateID:   orderKey,
		EventType:     models.EventTypePaymentRequested,
		Topic:         models.TopicPaymentEvents,
		PartitionKey:  orderKey,
		Payload: toPayload(models.PaymentRequestedPayload{
			OrderID:         order.ID,
			UserID:          user.ID,
			TotalAmount:     subtotal,
			UsedPointAmount: usedPoint,
			CardType:        req.CardType,
			CardNo:          req.CardNo,
		}),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return order, nil
}

// CancelOrder compensates a PENDING order. Terminal orders return without
// any effect, which makes retried cancellations idempotent.
func (s *OrderServiceImpl) CancelOrder(ctx context.Context, orderID int64, refundPoints int64, reason string) error {
	if refundPoints < 0 {
		return models.NewAppError(models.ErrorBadRequest, "refund points must not be negative: %d", refundPoints)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		s.logger.Info().Int64("order_id", orderID).Str("status", string(order.Status)).Msg("cancel skipped, order already terminal")
		return nil
	}

	if err := s.cancelLocked(ctx, tx, order, refundPoints, reason); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.OrdersCanceledTotal.WithLabelValues(reason).Inc()
	s.logger.Info().Int64("order_id", orderID).Str("reason", reason).Msg("order canceled")

	return nil
}

// cancelLocked performs the compensation steps on an already-locked PENDING
// order inside the caller's transaction.
func (s *OrderServiceImpl) cancelLocked(ctx context.Context, tx pgx.Tx, order *models.Order, refundPoints int64, reason string) error {
	if err := order.Cancel(); err != nil {
		return err
	}

	ids := make([]int64, 0, len(order.Items))
	quantities := make(map[int64]int64, len(order.Items))
	for _, item := range order.Items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products, err := s.productRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, product := range products {
		if err := product.IncreaseStock(quantities[product.ID]); err != nil {
			return err
		}
		if err := s.productRepo.UpdateStock(ctx, tx, product.ID, product.Stock); err != nil {
			return err
		}
	}

	user, err := s.userRepo.GetByIDForUpdate(ctx, tx, order.UserID)
	if err != nil {
		return err
	}
	newPoint, err := user.Point.Add(refundPoints)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePoint(ctx, tx, user.ID, newPoint.Balance); err != nil {
		return err
	}

	if err := s.orderRepo.UpdateStatus(ctx, tx, order); err != nil {
		return err
	}

	orderKey := strconv.FormatInt(order.ID, 10)
	return s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeOrder,
		AggregateID:   orderKey,
		EventType:     models.EventTypeOrderCanceled,
		Topic:         models.TopicOrderEvents,
		PartitionKey:  orderKey,
		Payload: map[string]interface{}{
			"orderId":      order.ID,
			"userId":       order.UserID,
			"reason":       reason,
			"refundPoints": refundPoints,
		},
	})
}

// OnPaymentResult reconciles an order with a payment outcome. Terminal orders
// return unchanged; PENDING outcomes change nothing.
func (s *OrderServiceImpl) OnPaymentResult(ctx context.Context, req *PaymentResultRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return models.NewAppError(models.ErrorBadRequest, "validation failed: %v", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, req.OrderID)
	if err != nil {
		return err
	}
	if order.IsTerminal() {
		return nil
	}

	switch req.Status {
	case models.PaymentStatusSuccess:
		if err := order.Complete(); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatus(ctx, tx, order); err != nil {
			return err
		}
		orderKey := strconv.FormatInt(order.ID, 10)
		if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
			AggregateType: models.AggregateTypeOrder,
			AggregateID:   orderKey,
			EventType:     models.EventTypeOrderCompleted,
			Topic:         models.TopicOrderEvents,
			PartitionKey:  orderKey,
			Payload: map[string]interface{}{
				"orderId": order.ID,
				"userId":  order.UserID,
			},
		}); err != nil {
			return err
		}
		s.metrics.OrdersCompletedTotal.Inc()

	case models.PaymentStatusFailed:
		if req.Reason == "" {
			return models.NewAppError(models.ErrorBadRequest, "payment failure requires a reason")
		}
		if err := s.cancelLocked(ctx, tx, order, req.RefundPoints, req.Reason); err != nil {
			return err
		}
		s.metrics.OrdersCanceledTotal.WithLabelValues("payment_failed").Inc()

	case models.PaymentStatusPending:
		return nil

	default:
		return models.NewAppError(models.ErrorBadRequest, "unknown payment status: %q", req.Status)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Int64("order_id", order.ID).
		Str("payment_status", string(req.Status)).
		Str("order_status", string(order.Status)).
		Msg("payment result reconciled")

	return nil
}

// GetOrder retrieves an order by id.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListUserOrders pages a user's orders, newest first.
func (s *OrderServiceImpl) ListUserOrders(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	orders, err := s.orderRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}
	return orders, nil
}
