package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/ranking"
	"github.com/loopershop/commerce-core/internal/repository"
)

// RankingHandler applies weighted score increments to the daily Redis ZSET.
type RankingHandler struct {
	db          Database
	index       *ranking.Index
	handledRepo repository.EventHandledRepository
	group       string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewRankingHandler creates the ranking record handler.
func NewRankingHandler(
	db Database,
	index *ranking.Index,
	handledRepo repository.EventHandledRepository,
	group string,
	logger zerolog.Logger,
) *RankingHandler {
	return &RankingHandler{
		db:          db,
		index:       index,
		handledRepo: handledRepo,
		group:       group,
		now:         time.Now,
		logger:      logger.With().Str("component", "ranking_consumer").Logger(),
	}
}

// Group implements RecordHandler.
func (h *RankingHandler) Group() string { return h.group }

// Handle implements RecordHandler. The Redis increment and the handled
// record live in different stores, so the gate is checked first and recorded
// last: a crash in between redelivers, which re-increments at most once more
// under the at-least-once contract.
func (h *RankingHandler) Handle(ctx context.Context, record *Record) error {
	handled, err := h.handledRepo.IsHandled(ctx, h.group, record.EventID)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	today := h.now()

	switch record.EventType {
	case models.EventTypeLikeAdded, models.EventTypeLikeRemoved:
		var payload models.LikeEventPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode like payload: %w", err)
		}
		delta := h.index.LikeDelta(record.EventType == models.EventTypeLikeAdded)
		if err := h.index.IncrementBy(ctx, today, payload.ProductID, delta); err != nil {
			return err
		}

	case models.EventTypeProductViewed:
		var payload models.ProductViewedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode view payload: %w", err)
		}
		if err := h.index.IncrementBy(ctx, today, payload.ProductID, h.index.ViewDelta()); err != nil {
			return err
		}

	case models.EventTypeOrderCreated:
		var payload models.OrderCreatedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode order payload: %w", err)
		}
		var totalQuantity int64
		for _, item := range payload.Items {
			if item.Quantity > 0 {
				totalQuantity += item.Quantity
			}
		}
		if totalQuantity <= 0 {
			break
		}
		averageUnitPrice := float64(payload.Subtotal) / float64(totalQuantity)
		for _, item := range payload.Items {
			if item.Quantity <= 0 {
				continue
			}
			amount := averageUnitPrice * float64(item.Quantity)
			if err := h.index.IncrementBy(ctx, today, item.ProductID, h.index.OrderDelta(amount)); err != nil {
				return err
			}
		}

	default:
		// No ranking effect for this event type.
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
