package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// OutboxRelay polls the outbox table and ships PENDING events to Kafka.
type OutboxRelay struct {
	outboxRepo    repository.OutboxRepository
	kafkaProducer sarama.SyncProducer
	metrics       *observability.Metrics
	logger        zerolog.Logger
	pollInterval  time.Duration
	batchSize     int
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(
	outboxRepo repository.OutboxRepository,
	kafkaProducer sarama.SyncProducer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	pollInterval time.Duration,
	batchSize int,
) *OutboxRelay {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		metrics:       metrics,
		logger:        logger.With().Str("component", "outbox_relay").Logger(),
		pollInterval:  pollInterval,
		batchSize:     batchSize,
	}
}

// Start begins polling for outbox events.
func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info().Msg("outbox relay started")
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.publishPending(ctx)
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopping")
			return
		}
	}
}

// publishPending ships one batch. Individual failures mark the row FAILED
// and never abort the batch.
func (r *OutboxRelay) publishPending(ctx context.Context) {
	events, err := r.outboxRepo.GetPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to get pending events")
		return
	}

	for _, event := range events {
		if publishErr := r.publishEvent(event); publishErr != nil {
			r.logger.Error().
				Err(publishErr).
				Str("event_id", event.EventID.String()).
				Str("event_type", event.EventType).
				Msg("failed to publish event")
			r.metrics.OutboxEventsFailed.WithLabelValues(event.EventType).Inc()

			if err := r.outboxRepo.MarkFailed(ctx, event.EventID); err != nil {
				r.logger.Error().Err(err).Msg("failed to mark event failed")
			}
			continue
		}

		r.metrics.OutboxEventsPublished.WithLabelValues(event.EventType).Inc()
		if err := r.outboxRepo.MarkPublished(ctx, event.EventID); err != nil {
			r.logger.Error().Err(err).Msg("failed to mark event published")
		}
	}
}

// publishEvent sends a single event to its topic, keyed by partition key so
// per-aggregate order survives the broker.
func (r *OutboxRelay) publishEvent(event *models.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: event.Topic,
		Key:   sarama.StringEncoder(event.PartitionKey),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(models.HeaderEventID), Value: []byte(event.EventID.String())},
			{Key: []byte(models.HeaderEventType), Value: []byte(event.EventType)},
			{Key: []byte(models.HeaderVersion), Value: []byte(strconv.FormatInt(event.Version, 10))},
		},
	}

	partition, offset, err := r.kafkaProducer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send to Kafka: %w", err)
	}

	r.logger.Debug().
		Str("event_type", event.EventType).
		Str("topic", event.Topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("published event to Kafka")

	return nil
}
