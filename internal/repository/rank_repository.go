package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// RankRepository owns the per-run product_rank_score temp table and the
// materialized product_rank leaderboard.
type RankRepository interface {
	// GetScoresByProductIDs batch-loads existing temp rows for a chunk.
	GetScoresByProductIDs(ctx context.Context, productIDs []int64) (map[int64]*models.ProductRankScore, error)

	// UpsertScores writes accumulated temp rows.
	UpsertScores(ctx context.Context, scores []*models.ProductRankScore) error

	// ListScoresDesc pages all temp rows ordered by score descending.
	ListScoresDesc(ctx context.Context, limit, offset int) ([]*models.ProductRankScore, error)

	// SaveRanks replaces the (periodType, periodStart) rank set with the
	// accumulated ranks. Delete-then-insert keeps repeated writes idempotent.
	SaveRanks(ctx context.Context, periodType models.PeriodType, periodStart time.Time, ranks []*models.ProductRank) error

	// ClearScores empties the temp table between runs.
	ClearScores(ctx context.Context) error

	// GetTopRanks reads the materialized leaderboard.
	GetTopRanks(ctx context.Context, periodType models.PeriodType, periodStart time.Time, limit int) ([]*models.ProductRank, error)
}

// PostgresRankRepository implements RankRepository using PostgreSQL.
type PostgresRankRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRankRepository creates a new PostgreSQL rank repository.
func NewPostgresRankRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRankRepository {
	return &PostgresRankRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_rank_repository").Logger(),
	}
}

func (r *PostgresRankRepository) GetScoresByProductIDs(ctx context.Context, productIDs []int64) (map[int64]*models.ProductRankScore, error) {
	query := `
		SELECT product_id, like_count, sales_count, view_count, score
		FROM product_rank_score
		WHERE product_id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get rank scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[int64]*models.ProductRankScore, len(productIDs))
	for rows.Next() {
		var s models.ProductRankScore
		if err := rows.Scan(&s.ProductID, &s.LikeCount, &s.SalesCount, &s.ViewCount, &s.Score); err != nil {
			return nil, fmt.Errorf("scan rank score: %w", err)
		}
		scores[s.ProductID] = &s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return scores, nil
}

func (r *PostgresRankRepository) UpsertScores(ctx context.Context, scores []*models.ProductRankScore) error {
	query := `
		INSERT INTO product_rank_score (product_id, like_count, sales_count, view_count, score)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id) DO UPDATE
		SET like_count = EXCLUDED.like_count,
		    sales_count = EXCLUDED.sales_count,
		    view_count = EXCLUDED.view_count,
		    score = EXCLUDED.score
	`

	batch := &pgx.Batch{}
	for _, s := range scores {
		batch.Queue(query, s.ProductID, s.LikeCount, s.SalesCount, s.ViewCount, s.Score)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range scores {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert rank score: %w", err)
		}
	}

	return nil
}

func (r *PostgresRankRepository) ListScoresDesc(ctx context.Context, limit, offset int) ([]*models.ProductRankScore, error) {
	query := `
		SELECT product_id, like_count, sales_count, view_count, score
		FROM product_rank_score
		ORDER BY score DESC, product_id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rank scores: %w", err)
	}
	defer rows.Close()

	var scores []*models.ProductRankScore
	for rows.Next() {
		var s models.ProductRankScore
		if err := rows.Scan(&s.ProductID, &s.LikeCount, &s.SalesCount, &s.ViewCount, &s.Score); err != nil {
			return nil, fmt.Errorf("scan rank score: %w", err)
		}
		scores = append(scores, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return scores, nil
}

func (r *PostgresRankRepository) SaveRanks(ctx context.Context, periodType models.PeriodType, periodStart time.Time, ranks []*models.ProductRank) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save ranks: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := `
		DELETE FROM product_rank
		WHERE period_type = $1 AND period_start_date = $2
	`
	if _, err := tx.Exec(ctx, deleteQuery, periodType, periodStart); err != nil {
		return fmt.Errorf("delete existing ranks: %w", err)
	}

	insertQuery := `
		INSERT INTO product_rank (period_type, period_start_date, product_id, rank, like_count, sales_count, view_count, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, rank := range ranks {
		_, err := tx.Exec(ctx, insertQuery,
			periodType,
			periodStart,
			rank.ProductID,
			rank.Rank,
			rank.LikeCount,
			rank.SalesCount,
			rank.ViewCount,
			rank.Score,
		)
		if err != nil {
			return fmt.Errorf("insert rank: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save ranks: %w", err)
	}

	r.logger.Debug().
		Str("period_type", string(periodType)).
		Time("period_start", periodStart).
		Int("count", len(ranks)).
		Msg("rank set saved")

	return nil
}

func (r *PostgresRankRepository) ClearScores(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM product_rank_score`); err != nil {
		return fmt.Errorf("clear rank scores: %w", err)
	}
	return nil
}

func (r *PostgresRankRepository) GetTopRanks(ctx context.Context, periodType models.PeriodType, periodStart time.Time, limit int) ([]*models.ProductRank, error) {
	query := `
		SELECT period_type, period_start_date, product_id, rank, like_count, sales_count, view_count, score
		FROM product_rank
		WHERE period_type = $1 AND period_start_date = $2
		ORDER BY rank ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, periodType, periodStart, limit)
	if err != nil {
		return nil, fmt.Errorf("get top ranks: %w", err)
	}
	defer rows.Close()

	var ranks []*models.ProductRank
	for rows.Next() {
		var pr models.ProductRank
		err := rows.Scan(
			&pr.PeriodType,
			&pr.PeriodStartDate,
			&pr.ProductID,
			&pr.Rank,
			&pr.LikeCount,
			&pr.SalesCount,
			&pr.ViewCount,
			&pr.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rank: %w", err)
		}
		ranks = append(ranks, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ranks, nil
}
