package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/repository"
)

// UserServiceImpl implements the UserService interface
type UserServiceImpl struct {
	db        Database
	userRepo  repository.UserRepository
	logger    zerolog.Logger
	validator *validator.Validate
}

// NewUserService creates a new user service instance
func NewUserService(db Database, userRepo repository.UserRepository, logger zerolog.Logger) UserService {
	return &UserServiceImpl{
		db:        db,
		userRepo:  userRepo,
		logger:    logger.With().Str("component", "user_service").Logger(),
		validator: validator.New(),
	}
}

// Register creates a user with a zero point balance. Duplicate user_id is
// CONFLICT.
func (s *UserServiceImpl) Register(ctx context.Context, req *RegisterUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewAppError(models.ErrorBadRequest, "validation failed: %v", err)
	}

	user, err := models.NewUser(req.UserID, req.Email, req.BirthDate, req.Gender)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("user registered")
	return user, nil
}

// ChargePoint adds points to a user's balance under a row lock.
func (s *UserServiceImpl) ChargePoint(ctx context.Context, userID string, amount int64) (*models.User, error) {
	if amount <= 0 {
		return nil, models.NewAppError(models.ErrorBadRequest, "charge amount must be positive: %d", amount)
	}

	user, err := s.userRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := s.userRepo.GetByIDForUpdate(ctx, tx, user.ID)
	if err != nil {
		return nil, err
	}
	newPoint, err := locked.Point.Add(amount)
	if err != nil {
		return nil, err
	}
	locked.Point = newPoint
	if err := s.userRepo.UpdatePoint(ctx, tx, locked.ID, locked.Point.Balance); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Int64("amount", amount).
		Int64("balance", locked.Point.Balance).
		Msg("points charged")

	return locked, nil
}
