package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// LikeServiceImpl implements the LikeService interface
type LikeServiceImpl struct {
	db         Database
	likeRepo   repository.LikeRepository
	outboxRepo repository.OutboxRepository
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewLikeService creates a new like service instance
func NewLikeService(
	db Database,
	likeRepo repository.LikeRepository,
	outboxRepo repository.OutboxRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) LikeService {
	return &LikeServiceImpl{
		db:         db,
		likeRepo:   likeRepo,
		outboxRepo: outboxRepo,
		metrics:    metrics,
		logger:     logger.With().Str("component", "like_service").Logger(),
	}
}

// AddLike inserts the (user, product) pair. Only a first insert emits a
// like.added event, so duplicate calls leave one row and one outbox entry.
func (s *LikeServiceImpl) AddLike(ctx context.Context, userID, productID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.likeRepo.Insert(ctx, tx, userID, productID)
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.Debug().
			Int64("user_id", userID).
			Int64("product_id", productID).
			Msg("like already present")
		return nil
	}

	productKey := strconv.FormatInt(productID, 10)
	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeProduct,
		AggregateID:   productKey,
		EventType:     models.EventTypeLikeAdded,
		Topic:         models.TopicLikeEvents,
		PartitionKey:  productKey,
		Payload:       toPayload(models.LikeEventPayload{UserID: userID, ProductID: productID}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.LikesTotal.WithLabelValues("add").Inc()
	return nil
}

// RemoveLike deletes the pair; removing an absent like is a no-op and emits
// nothing.
func (s *LikeServiceImpl) RemoveLike(ctx context.Context, userID, productID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleted, err := s.likeRepo.Delete(ctx, tx, userID, productID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	productKey := strconv.FormatInt(productID, 10)
	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeProduct,
		AggregateID:   productKey,
		EventType:     models.EventTypeLikeRemoved,
		Topic:         models.TopicLikeEvents,
		PartitionKey:  productKey,
		Payload:       toPayload(models.LikeEventPayload{UserID: userID, ProductID: productID}),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.metrics.LikesTotal.WithLabelValues("remove").Inc()
	return nil
}
