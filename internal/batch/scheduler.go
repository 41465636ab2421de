package batch

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/ranking"
	"github.com/loopershop/commerce-core/internal/repository"
	"github.com/loopershop/commerce-core/internal/service"
)

// Scheduler wires the periodic jobs: rank batches, ranking carry-over,
// payment reconciliation, outbox cleanup.
type Scheduler struct {
	cron            *cron.Cron
	rankBatch       *RankBatch
	index           *ranking.Index
	paymentService  service.PaymentService
	outboxRepo      repository.OutboxRepository
	carryOverWeight float64
	logger          zerolog.Logger
}

// NewScheduler creates the job scheduler.
func NewScheduler(
	rankBatch *RankBatch,
	index *ranking.Index,
	paymentService service.PaymentService,
	outboxRepo repository.OutboxRepository,
	carryOverWeight float64,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		cron:            cron.New(),
		rankBatch:       rankBatch,
		index:           index,
		paymentService:  paymentService,
		outboxRepo:      outboxRepo,
		carryOverWeight: carryOverWeight,
		logger:          logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the jobs and runs the cron loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	// Weekly leaderboard for the closing week, Mondays just after midnight.
	if _, err := s.cron.AddFunc("10 0 * * 1", func() {
		target := time.Now().AddDate(0, 0, -1)
		if err := s.rankBatch.Run(ctx, models.PeriodWeekly, target); err != nil {
			s.logger.Error().Err(err).Msg("weekly rank batch failed")
		}
	}); err != nil {
		return err
	}

	// Monthly leaderboard on the 1st.
	if _, err := s.cron.AddFunc("20 0 1 * *", func() {
		target := time.Now().AddDate(0, 0, -1)
		if err := s.rankBatch.Run(ctx, models.PeriodMonthly, target); err != nil {
			s.logger.Error().Err(err).Msg("monthly rank batch failed")
		}
	}); err != nil {
		return err
	}

	// Seed tomorrow's ranking key with a decayed copy of today before the
	// day rolls over.
	if _, err := s.cron.AddFunc("50 23 * * *", func() {
		today := time.Now()
		tomorrow := today.AddDate(0, 0, 1)
		if err := s.index.CarryOver(ctx, today, tomorrow, s.carryOverWeight); err != nil {
			s.logger.Error().Err(err).Msg("ranking carry-over failed")
		}
	}); err != nil {
		return err
	}

	// Reconcile payments stuck PENDING with a transaction key.
	if _, err := s.cron.AddFunc("*/5 * * * *", func() {
		if err := s.paymentService.ReconcilePending(ctx, 5*time.Minute, 100); err != nil {
			s.logger.Error().Err(err).Msg("payment reconciliation failed")
		}
	}); err != nil {
		return err
	}

	// Trim published outbox rows.
	if _, err := s.cron.AddFunc("0 * * * *", func() {
		if _, err := s.outboxRepo.CleanupPublished(ctx, 24*time.Hour); err != nil {
			s.logger.Error().Err(err).Msg("outbox cleanup failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Msg("scheduler started")

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}
