package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// Score weights for the leaderboard.
const (
	likeScoreWeight  = 0.3
	salesScoreWeight = 0.5
	viewScoreWeight  = 0.2
)

// RankBatch materializes the weekly/monthly leaderboard in two steps:
// aggregate metric deltas into product_rank_score, then select and persist
// the top N.
type RankBatch struct {
	metricsRepo repository.ProductMetricsRepository
	rankRepo    repository.RankRepository
	metrics     *observability.Metrics
	logger      zerolog.Logger
	chunkSize   int
	topN        int
}

// NewRankBatch creates a batch ranker with chunk size 100 and top 100
// unless overridden.
func NewRankBatch(
	metricsRepo repository.ProductMetricsRepository,
	rankRepo repository.RankRepository,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	chunkSize, topN int,
) *RankBatch {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if topN <= 0 {
		topN = 100
	}
	return &RankBatch{
		metricsRepo: metricsRepo,
		rankRepo:    rankRepo,
		metrics:     metrics,
		logger:      logger.With().Str("component", "rank_batch").Logger(),
		chunkSize:   chunkSize,
		topN:        topN,
	}
}

// Run executes both steps for the period containing targetDate.
func (b *RankBatch) Run(ctx context.Context, periodType models.PeriodType, targetDate time.Time) error {
	periodStart, periodEnd, err := models.PeriodRange(periodType, targetDate)
	if err != nil {
		return err
	}

	b.logger.Info().
		Str("period_type", string(periodType)).
		Time("period_start", periodStart).
		Time("period_end", periodEnd).
		Msg("rank batch starting")

	// The temp table is per-run state; start from a clean slate.
	if err := b.rankRepo.ClearScores(ctx); err != nil {
		return err
	}

	if err := b.aggregateScores(ctx, periodStart, periodEnd); err != nil {
		return fmt.Errorf("score aggregation: %w", err)
	}
	if err := b.selectRanks(ctx, periodType, periodStart); err != nil {
		return fmt.Errorf("rank selection: %w", err)
	}

	if err := b.rankRepo.ClearScores(ctx); err != nil {
		return err
	}

	b.logger.Info().
		Str("period_type", string(periodType)).
		Time("period_start", periodStart).
		Msg("rank batch complete")

	return nil
}

// aggregateScores is Step 1: page product_metrics by product id in chunks,
// fold each chunk into the existing temp rows and recompute scores. Reusing
// the same chunk size across chunks accumulates correctly because the fold
// always adds onto whatever the temp table already holds.
func (b *RankBatch) aggregateScores(ctx context.Context, periodStart, periodEnd time.Time) error {
	var afterProductID int64

	for {
		chunk, err := b.metricsRepo.ListUpdatedInRange(ctx, afterProductID, periodStart, periodEnd, b.chunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}

		productIDs := make([]int64, 0, len(chunk))
		for _, m := range chunk {
			productIDs = append(productIDs, m.ProductID)
		}

		existing, err := b.rankRepo.GetScoresByProductIDs(ctx, productIDs)
		if err != nil {
			return err
		}

		upserts := make([]*models.ProductRankScore, 0, len(chunk))
		for _, m := range chunk {
			score := existing[m.ProductID]
			if score == nil {
				score = &models.ProductRankScore{ProductID: m.ProductID}
			}
			score.LikeCount += m.LikeCount
			score.SalesCount += m.SalesCount
			score.ViewCount += m.ViewCount
			score.Score = likeScoreWeight*float64(score.LikeCount) +
				salesScoreWeight*float64(score.SalesCount) +
				viewScoreWeight*float64(score.ViewCount)
			upserts = append(upserts, score)
		}

		if err := b.rankRepo.UpsertScores(ctx, upserts); err != nil {
			return err
		}
		b.metrics.BatchRowsWritten.WithLabelValues("aggregate").Add(float64(len(upserts)))

		afterProductID = chunk[len(chunk)-1].ProductID
		if len(chunk) < b.chunkSize {
			return nil
		}
	}
}

// rankAssigner carries the running rank across chunks in its own state
// instead of anything thread-scoped.
type rankAssigner struct {
	counter int
	topN    int
}

// next assigns the next rank, or nil once the top N is exhausted.
func (a *rankAssigner) next(score *models.ProductRankScore) *models.ProductRank {
	a.counter++
	if a.counter > a.topN {
		return nil
	}
	return &models.ProductRank{
		ProductID:  score.ProductID,
		Rank:       a.counter,
		LikeCount:  score.LikeCount,
		SalesCount: score.SalesCount,
		ViewCount:  score.ViewCount,
		Score:      score.Score,
	}
}

// selectRanks is Step 2: stream temp rows by score descending, assign ranks,
// and persist the accumulated set at each chunk boundary. SaveRanks deletes
// then inserts, so repeated writes converge on the final set.
func (b *RankBatch) selectRanks(ctx context.Context, periodType models.PeriodType, periodStart time.Time) error {
	assigner := &rankAssigner{topN: b.topN}
	var accumulated []*models.ProductRank
	offset := 0

	for {
		chunk, err := b.rankRepo.ListScoresDesc(ctx, b.chunkSize, offset)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}

		for _, score := range chunk {
			if rank := assigner.next(score); rank != nil {
				rank.PeriodType = periodType
				rank.PeriodStartDate = periodStart
				accumulated = append(accumulated, rank)
			}
		}

		if err := b.rankRepo.SaveRanks(ctx, periodType, periodStart, accumulated); err != nil {
			return err
		}
		b.metrics.BatchRowsWritten.WithLabelValues("rank").Add(float64(len(accumulated)))

		offset += len(chunk)
		if len(chunk) < b.chunkSize || assigner.counter >= assigner.topN {
			// Past the top N every further row maps to nil; the persisted
			// set cannot change anymore.
			break
		}
	}

	if len(accumulated) == 0 {
		return b.rankRepo.SaveRanks(ctx, periodType, periodStart, nil)
	}

	return nil
}
