package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/repository"
)

// Database starts transactions for consumer-side effects.
type Database interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ProductLikeCountSetter refreshes the denormalized like counter on the
// product row.
type ProductLikeCountSetter interface {
	SetLikeCount(ctx context.Context, id int64, likeCount int64) error
}

// MetricsHandler applies like/order/view events to the product_metrics table
// with version gating, and refreshes the denormalized like counter on the
// product row.
type MetricsHandler struct {
	db          Database
	metricsRepo repository.ProductMetricsRepository
	productRepo ProductLikeCountSetter
	handledRepo repository.EventHandledRepository
	group       string
	logger      zerolog.Logger
}

// NewMetricsHandler creates the product-metrics record handler.
func NewMetricsHandler(
	db Database,
	metricsRepo repository.ProductMetricsRepository,
	productRepo ProductLikeCountSetter,
	handledRepo repository.EventHandledRepository,
	group string,
	logger zerolog.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		db:          db,
		metricsRepo: metricsRepo,
		productRepo: productRepo,
		handledRepo: handledRepo,
		group:       group,
		logger:      logger.With().Str("component", "metrics_consumer").Logger(),
	}
}

// Group implements RecordHandler.
func (h *MetricsHandler) Group() string { return h.group }

// Handle implements RecordHandler. The effect and the event_handled insert
// commit in one transaction, so redelivery is a no-op.
func (h *MetricsHandler) Handle(ctx context.Context, record *Record) error {
	handled, err := h.handledRepo.IsHandled(ctx, h.group, record.EventID)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	tx, err := h.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var likeCounts map[int64]int64

	switch record.EventType {
	case models.EventTypeLikeAdded, models.EventTypeLikeRemoved:
		var payload models.LikeEventPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode like payload: %w", err)
		}
		delta := int64(1)
		if record.EventType == models.EventTypeLikeRemoved {
			delta = -1
		}
		metrics, err := h.applyToMetrics(ctx, tx, payload.ProductID, record.Version, true, func(m *models.ProductMetrics) {
			m.LikeCount += delta
			if m.LikeCount < 0 {
				m.LikeCount = 0
			}
		})
		if err != nil {
			return err
		}
		if metrics != nil {
			likeCounts = map[int64]int64{payload.ProductID: metrics.LikeCount}
		}

	case models.EventTypeOrderCreated:
		var payload models.OrderCreatedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode order payload: %w", err)
		}
		for _, item := range payload.Items {
			if item.Quantity <= 0 {
				continue
			}
			quantity := item.Quantity
			// Order events carry the order aggregate's version, which is not
			// comparable with the product-aggregate versions this row
			// tracks; the event_handled gate alone dedupes them.
			if _, err := h.applyToMetrics(ctx, tx, item.ProductID, record.Version, false, func(m *models.ProductMetrics) {
				m.SalesCount += quantity
			}); err != nil {
				return err
			}
		}

	case models.EventTypeProductViewed:
		var payload models.ProductViewedPayload
		if err := json.Unmarshal(record.Payload, &payload); err != nil {
			return fmt.Errorf("decode view payload: %w", err)
		}
		if _, err := h.applyToMetrics(ctx, tx, payload.ProductID, record.Version, true, func(m *models.ProductMetrics) {
			m.ViewCount++
		}); err != nil {
			return err
		}

	default:
		// Other event types on these topics carry no metrics effect.
	}

	if err := h.handledRepo.MarkHandled(ctx, tx, h.group, record.EventID, record.EventType, record.Topic); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Refresh the denormalized counter outside the metrics transaction; the
	// catalog column is eventually consistent by design.
	for productID, likeCount := range likeCounts {
		if err := h.productRepo.SetLikeCount(ctx, productID, likeCount); err != nil {
			h.logger.Warn().Err(err).Int64("product_id", productID).Msg("failed to refresh product like count")
		}
	}

	return nil
}

// applyToMetrics locks (or creates) the metrics row and applies mutate.
// When gate is set, events with eventVersion <= the row's version are
// dropped and the applied version advances the row. Returns the row, or nil
// when the event was stale.
func (h *MetricsHandler) applyToMetrics(ctx context.Context, tx pgx.Tx, productID int64, eventVersion int64, gate bool, mutate func(*models.ProductMetrics)) (*models.ProductMetrics, error) {
	metrics, err := h.metricsRepo.GetForUpdate(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = &models.ProductMetrics{ProductID: productID}
		if err := h.metricsRepo.Create(ctx, tx, metrics); err != nil {
			if errors.Is(err, models.ErrConflict) {
				// Lost the first-creation race; re-select under lock.
				metrics, err = h.metricsRepo.GetForUpdate(ctx, tx, productID)
				if err != nil {
					return nil, err
				}
				if metrics == nil {
					return nil, models.NewAppError(models.ErrorInternal, "metrics row for product %d vanished", productID)
				}
			} else {
				return nil, err
			}
		}
	}

	if gate {
		if eventVersion <= metrics.Version {
			h.logger.Debug().
				Int64("product_id", productID).
				Int64("event_version", eventVersion).
				Int64("current_version", metrics.Version).
				Msg("stale event dropped")
			return nil, nil
		}
		metrics.Version = eventVersion
	}

	mutate(metrics)
	if err := h.metricsRepo.Update(ctx, tx, metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}
