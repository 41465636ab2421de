package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// OutboxRepository defines the interface for outbox event operations.
type OutboxRepository interface {
	// Append inserts a new outbox event within a transaction, assigning the
	// next per-aggregate version. The unique index on
	// (aggregate_id, aggregate_type, version) turns a lost race into a
	// CONFLICT error. OrderService.CreateOrder retries its transaction on it;
	// the other callers return it.
	// MUST be called within a transaction.
	Append(ctx context.Context, tx pgx.Tx, event *models.OutboxEvent) error

	// GetPending retrieves PENDING events ordered by created_at for the relay.
	GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error)

	// MarkPublished marks an event as shipped, setting published_at.
	MarkPublished(ctx context.Context, eventID uuid.UUID) error

	// MarkFailed marks an event as failed to ship. Re-queueing failed rows is
	// an external concern.
	MarkFailed(ctx context.Context, eventID uuid.UUID) error

	// CleanupPublished deletes old published events to prevent table bloat.
	// Returns the number of deleted events.
	CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL.
type PostgresOutboxRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresOutboxRepository creates a new PostgreSQL outbox repository.
func NewPostgresOutboxRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_outbox_repository").Logger(),
	}
}

// Append inserts a new outbox event, reading max(version)+1 for the aggregate
// in the same statement so the version reflects commit order. Two concurrent
// writers on one aggregate serialize on the unique index: the loser's insert
// fails with CONFLICT, which is returned to the caller.
func (r *PostgresOutboxRepository) Append(ctx context.Context, tx pgx.Tx, event *models.OutboxEvent) error {
	query := `
		INSERT INTO outbox_event (
			event_id, aggregate_type, aggregate_id, event_type, payload,
			topic, partition_key, version, status, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7,
		       COALESCE(MAX(version), 0) + 1, $8, NOW()
		FROM outbox_event
		WHERE aggregate_id = $3 AND aggregate_type = $2
		RETURNING id, version, created_at
	`

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	event.Status = models.OutboxStatusPending

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		r.logger.Error().Err(err).
			Str("event_type", event.EventType).
			Msg("failed to marshal event payload")
		return fmt.Errorf("marshal event payload: %w", err)
	}

	err = tx.QueryRow(ctx, query,
		event.EventID,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		payloadJSON,
		event.Topic,
		event.PartitionKey,
		event.Status,
	).Scan(&event.ID, &event.Version, &event.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return models.NewAppError(models.ErrorConflict,
				"outbox version race on %s/%s", event.AggregateType, event.AggregateID)
		}
		r.logger.Error().Err(err).
			Str("event_type", event.EventType).
			Str("aggregate_id", event.AggregateID).
			Msg("failed to append outbox event")
		return fmt.Errorf("append outbox event: %w", err)
	}

	r.logger.Debug().
		Str("event_id", event.EventID.String()).
		Str("event_type", event.EventType).
		Int64("version", event.Version).
		Msg("outbox event appended")

	return nil
}

func (r *PostgresOutboxRepository) GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	query := `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload,
		       topic, partition_key, version, status, created_at, published_at
		FROM outbox_event
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []*models.OutboxEvent
	for rows.Next() {
		var event models.OutboxEvent
		var payloadJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&payloadJSON,
			&event.Topic,
			&event.PartitionKey,
			&event.Version,
			&event.Status,
			&event.CreatedAt,
			&event.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}

		if err := json.Unmarshal(payloadJSON, &event.Payload); err != nil {
			r.logger.Error().Err(err).
				Str("event_id", event.EventID.String()).
				Msg("failed to unmarshal event payload")
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}

		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func (r *PostgresOutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	query := `
		UPDATE outbox_event
		SET status = 'PUBLISHED', published_at = NOW()
		WHERE event_id = $1
	`

	result, err := r.pool.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "outbox event %s not found", eventID)
	}

	return nil
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	query := `
		UPDATE outbox_event
		SET status = 'FAILED'
		WHERE event_id = $1
	`

	result, err := r.pool.Exec(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "outbox event %s not found", eventID)
	}

	return nil
}

func (r *PostgresOutboxRepository) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox_event
		WHERE status = 'PUBLISHED' AND published_at < NOW() - $1::interval
	`

	result, err := r.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup published events: %w", err)
	}

	deletedCount := result.RowsAffected()
	if deletedCount > 0 {
		r.logger.Info().
			Int64("deleted_count", deletedCount).
			Dur("older_than", olderThan).
			Msg("cleaned up published events")
	}

	return deletedCount, nil
}
