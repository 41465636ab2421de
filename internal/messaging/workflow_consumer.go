package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/repository"
	"github.com/loopershop/commerce-core/internal/service"
)

// WorkflowHandler drives the order/payment workflow off payment-events and
// coupon-events: payment requests, payment outcomes, coupon application.
type WorkflowHandler struct {
	db             Database
	orderService   service.OrderService
	paymentService service.PaymentService
	handledRepo    repository.EventHandledRepository
	group          string
	logger         zerolog.Logger
}

// NewWorkflowHandler creates the order-workflow record handler.
func NewWorkflowHandler(
	db Database,
	orderService service.OrderService,
	paymentService service.PaymentService,
	handledRepo repository.EventHandledRepository,
	group string,
	logger zerolog.Logger,
) *WorkflowHandler {
	return &WorkflowHandler{
		db:             db,
		orderService:   orderService,
		paymentService: paymentService,
		handledRepo:    handledRepo,
		group:          group,
		logger:         logger.With().Str("component", "workflow_consumer").Logger(),
	}
}

// Group implements RecordHandler.
func (h *WorkflowHandler) Group() string { return h.group }

// Handle implements RecordHandler. Effects run in the services' own
// transactions; the handled record commits afterwards. A crash in between
// redelivers, and the sticky terminal states of Order and Payment absorb
// the replay.
func (h *WorkflowHandler) Handle(ctx context.Context, record *Record) error {
	handled, err := h.handledRepo.IsHandled(ctx, h.group, record.EventID)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	switch record.EventType {
	case models.EventTypePaymentRequested:
		var payload models.PaymentRequestedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode payment request payload: %w", err)
		}
		if err := h.paymentService.HandlePaymentRequested(ctx, &payload); err != nil {
			return err
		}

	case models.EventTypePaymentCompleted:
		var payload models.PaymentCompletedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode payment completed payload: %w", err)
		}
		if err := h.orderService.OnPaymentResult(ctx, &service.PaymentResultRequest{
			OrderID: payload.OrderID,
			Status:  models.PaymentStatusSuccess,
		}); err != nil {
			return err
		}

	case models.EventTypePaymentFailed:
		var payload models.PaymentFailedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode payment failed payload: %w", err)
		}
		if err := h.orderService.OnPaymentResult(ctx, &service.PaymentResultRequest{
			OrderID:      payload.OrderID,
			Status:       models.PaymentStatusFailed,
			Reason:       payload.Reason,
			RefundPoints: payload.RefundPointAmount,
		}); err != nil {
			return err
		}

	case models.EventTypeCouponApplied:
		var payload models.CouponAppliedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode coupon payload: %w", err)
		}
		if err := h.paymentService.HandleCouponApplied(ctx, &payload); err != nil {
			return err
		}

	default:
		// Other event types on this group's topics need no workflow effect.
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := h.handledRepo.MarkHandled(ctx, tx, h.group, record.EventID, record.EventType, record.Topic); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
