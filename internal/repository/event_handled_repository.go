package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// EventHandledRepository is the consumer-side idempotency store. The primary
// key on (event_id, consumer_group) enforces at-most-once effect per
// consumer group.
type EventHandledRepository interface {
	// IsHandled reports whether the event was already applied by the group.
	IsHandled(ctx context.Context, group string, eventID uuid.UUID) (bool, error)

	// MarkHandled records the event within the effect's transaction. A
	// unique violation means a concurrent consumer in the same group
	// recorded it first and is treated as success.
	// MUST be called within a transaction.
	MarkHandled(ctx context.Context, tx pgx.Tx, group string, eventID uuid.UUID, eventType, topic string) error
}

// PostgresEventHandledRepository implements EventHandledRepository using PostgreSQL.
type PostgresEventHandledRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresEventHandledRepository creates a new PostgreSQL event-handled repository.
func NewPostgresEventHandledRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresEventHandledRepository {
	return &PostgresEventHandledRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_event_handled_repository").Logger(),
	}
}

func (r *PostgresEventHandledRepository) IsHandled(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
	query := `SELECT 1 FROM event_handled WHERE event_id = $1 AND consumer_group = $2`

	var one int
	err := r.pool.QueryRow(ctx, query, eventID, group).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check event handled: %w", err)
	}
	return true, nil
}

func (r *PostgresEventHandledRepository) MarkHandled(ctx context.Context, tx pgx.Tx, group string, eventID uuid.UUID, eventType, topic string) error {
	query := `
		INSERT INTO event_handled (event_id, consumer_group, event_type, topic, handled_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id, consumer_group) DO NOTHING
	`

	if _, err := tx.Exec(ctx, query, eventID, group, eventType, topic); err != nil {
		return fmt.Errorf("mark event handled: %w", err)
	}
	return nil
}
