package messaging

import (
	"context"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
)

// Record is one consumed Kafka message with its decoded headers.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	EventID   uuid.UUID
	EventType string
	Version   int64
	Payload   []byte
}

// RecordHandler applies the domain effect of one record. Implementations own
// idempotency via the event_handled table.
type RecordHandler interface {
	// Group is the consumer-group id used for idempotency records.
	Group() string

	// Handle applies one record. Errors are logged and the loop continues;
	// redelivery is safe by idempotency.
	Handle(ctx context.Context, record *Record) error
}

// Consumer runs a sarama consumer group over a topic set with a pool of
// concurrent session loops and manual offset marking.
type Consumer struct {
	group       sarama.ConsumerGroup
	topics      []string
	handler     RecordHandler
	concurrency int
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewConsumerConfig returns the sarama config shared by all consumer groups:
// round-robin rebalance, oldest offset, bounded poll.
func NewConsumerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Fetch.Default = 1 << 20
	return config
}

// NewConsumer creates a consumer pool for the topics.
func NewConsumer(
	group sarama.ConsumerGroup,
	topics []string,
	handler RecordHandler,
	concurrency int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Consumer {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Consumer{
		group:       group,
		topics:      topics,
		handler:     handler,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With().Str("component", "consumer").Str("group", handler.Group()).Logger(),
	}
}

// Start runs the consume loops until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for worker := 0; worker < c.concurrency; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := &consumerSession{
				handler: c.handler,
				metrics: c.metrics,
				logger:  c.logger,
			}
			for {
				if ctx.Err() != nil {
					return
				}
				// Consume blocks through one rebalance generation and
				// returns; loop to rejoin.
				if err := c.group.Consume(ctx, c.topics, session); err != nil {
					if ctx.Err() != nil {
						return
					}
					c.logger.Error().Err(err).Msg("consume error, rejoining group")
				}
			}
		}()
	}
	wg.Wait()
	c.logger.Info().Msg("consumer stopped")
}

// consumerSession implements sarama.ConsumerGroupHandler.
type consumerSession struct {
	handler RecordHandler
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func (s *consumerSession) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (s *consumerSession) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (s *consumerSession) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	group := s.handler.Group()
	for message := range claim.Messages() {
		record, ok := decodeRecord(message)
		if !ok {
			// Missing or malformed eventId header: skip and log.
			s.logger.Warn().
				Str("topic", message.Topic).
				Int64("offset", message.Offset).
				Msg("record without event id header skipped")
			s.metrics.ConsumerRecordsSkipped.WithLabelValues(message.Topic, group, "missing_event_id").Inc()
			session.MarkMessage(message, "")
			continue
		}

		if err := s.handler.Handle(session.Context(), record); err != nil {
			// Per-record failures never stop the batch; redelivery is safe
			// by idempotency.
			s.logger.Error().Err(err).
				Str("topic", record.Topic).
				Str("event_id", record.EventID.String()).
				Str("event_type", record.EventType).
				Msg("record processing failed")
			s.metrics.ConsumerRecordsFailed.WithLabelValues(record.Topic, group).Inc()
		} else {
			s.metrics.ConsumerRecordsProcessed.WithLabelValues(record.Topic, group).Inc()
		}

		session.MarkMessage(message, "")
	}
	return nil
}

// decodeRecord extracts the eventId/eventType/version headers.
func decodeRecord(message *sarama.ConsumerMessage) (*Record, bool) {
	record := &Record{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Payload:   message.Value,
	}

	for _, header := range message.Headers {
		switch string(header.Key) {
		case models.HeaderEventID:
			id, err := uuid.Parse(string(header.Value))
			if err != nil {
				return nil, false
			}
			record.EventID = id
		case models.HeaderEventType:
			record.EventType = string(header.Value)
		case models.HeaderVersion:
			if v, err := strconv.ParseInt(string(header.Value), 10, 64); err == nil {
				record.Version = v
			}
		}
	}

	if record.EventID == uuid.Nil {
		return nil, false
	}
	return record, true
}
