package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// UserRepository defines data access for the user aggregate and its embedded
// point balance.
type UserRepository interface {
	// Create inserts a new user. Returns CONFLICT on duplicate user_id.
	Create(ctx context.Context, user *models.User) error

	// GetByUserID retrieves a user by the external user_id.
	// Returns NOT_FOUND if the user doesn't exist.
	GetByUserID(ctx context.Context, userID string) (*models.User, error)

	// GetByIDForUpdate retrieves a user with a FOR UPDATE row lock.
	// MUST be called within a transaction.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.User, error)

	// UpdatePoint persists the point balance of a locked user row.
	// MUST be called within a transaction.
	UpdatePoint(ctx context.Context, tx pgx.Tx, id int64, balance int64) error
}

// PostgresUserRepository implements UserRepository using PostgreSQL.
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
func NewPostgresUserRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_user_repository").Logger(),
	}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (user_id, email, birth_date, gender, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.UserID,
		user.Email,
		user.BirthDate,
		user.Gender,
		user.Point.Balance,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return models.NewAppError(models.ErrorConflict, "user_id %q already registered", user.UserID)
		}
		r.logger.Error().Err(err).Str("user_id", user.UserID).Msg("failed to create user")
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, user_id, email, birth_date, gender, balance, created_at
		FROM users
		WHERE user_id = $1
	`

	var user models.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.UserID,
		&user.Email,
		&user.BirthDate,
		&user.Gender,
		&user.Point.Balance,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "user %q not found", userID)
		}
		return nil, fmt.Errorf("get user by user_id: %w", err)
	}

	return &user, nil
}

func (r *PostgresUserRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.User, error) {
	query := `
		SELECT id, user_id, email, birth_date, gender, balance, created_at
		FROM users
		WHERE id = $1
		FOR UPDATE
	`

	var user models.User
	err := tx.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.UserID,
		&user.Email,
		&user.BirthDate,
		&user.Gender,
		&user.Point.Balance,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "user %d not found", id)
		}
		return nil, fmt.Errorf("get user for update: %w", err)
	}

	return &user, nil
}

func (r *PostgresUserRepository) UpdatePoint(ctx context.Context, tx pgx.Tx, id int64, balance int64) error {
	query := `
		UPDATE users
		SET balance = $2
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query, id, balance)
	if err != nil {
		r.logger.Error().Err(err).Int64("user_id", id).Msg("failed to update point balance")
		return fmt.Errorf("update point balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "user %d not found", id)
	}

	return nil
}
