package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
)

// ProductMetricsRepository maintains the denormalized product_metrics rows.
type ProductMetricsRepository interface {
	// GetForUpdate retrieves a metrics row with a FOR UPDATE lock, or nil if
	// the product has no row yet.
	// MUST be called within a transaction.
	GetForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (*models.ProductMetrics, error)

	// Create inserts the first metrics row for a product. Returns CONFLICT
	// when another consumer created it first; callers re-select.
	// MUST be called within a transaction.
	Create(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error

	// Update persists counters and version of a locked row.
	// MUST be called within a transaction.
	Update(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error

	// ListUpdatedInRange pages metrics rows with updated_at in
	// [periodStart, periodEnd), ordered by product_id, keyset after
	// afterProductID. Feeds Step 1 of the batch ranker.
	ListUpdatedInRange(ctx context.Context, afterProductID int64, periodStart, periodEnd time.Time, limit int) ([]*models.ProductMetrics, error)
}

// PostgresProductMetricsRepository implements ProductMetricsRepository using PostgreSQL.
type PostgresProductMetricsRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresProductMetricsRepository creates a new PostgreSQL product metrics repository.
func NewPostgresProductMetricsRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresProductMetricsRepository {
	return &PostgresProductMetricsRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_product_metrics_repository").Logger(),
	}
}

const metricsColumns = `product_id, like_count, sales_count, view_count, version, updated_at`

func scanMetrics(row pgx.Row) (*models.ProductMetrics, error) {
	var m models.ProductMetrics
	err := row.Scan(&m.ProductID, &m.LikeCount, &m.SalesCount, &m.ViewCount, &m.Version, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresProductMetricsRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (*models.ProductMetrics, error) {
	query := `SELECT ` + metricsColumns + ` FROM product_metrics WHERE product_id = $1 FOR UPDATE`

	metrics, err := scanMetrics(tx.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get metrics for update: %w", err)
	}
	return metrics, nil
}

func (r *PostgresProductMetricsRepository) Create(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error {
	query := `
		INSERT INTO product_metrics (product_id, like_count, sales_count, view_count, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING updated_at
	`

	err := tx.QueryRow(ctx, query,
		metrics.ProductID,
		metrics.LikeCount,
		metrics.SalesCount,
		metrics.ViewCount,
		metrics.Version,
	).Scan(&metrics.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewAppError(models.ErrorConflict, "metrics row for product %d already exists", metrics.ProductID)
		}
		return fmt.Errorf("create metrics: %w", err)
	}

	return nil
}

func (r *PostgresProductMetricsRepository) Update(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error {
	query := `
		UPDATE product_metrics
		SET like_count = $2, sales_count = $3, view_count = $4, version = $5, updated_at = NOW()
		WHERE product_id = $1
	`

	result, err := tx.Exec(ctx, query,
		metrics.ProductID,
		metrics.LikeCount,
		metrics.SalesCount,
		metrics.ViewCount,
		metrics.Version,
	)
	if err != nil {
		return fmt.Errorf("update metrics: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "metrics row for product %d not found", metrics.ProductID)
	}

	return nil
}

func (r *PostgresProductMetricsRepository) ListUpdatedInRange(ctx context.Context, afterProductID int64, periodStart, periodEnd time.Time, limit int) ([]*models.ProductMetrics, error) {
	query := `
		SELECT ` + metricsColumns + `
		FROM product_metrics
		WHERE product_id > $1 AND updated_at >= $2 AND updated_at < $3
		ORDER BY product_id ASC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, afterProductID, periodStart, periodEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var result []*models.ProductMetrics
	for rows.Next() {
		m, err := scanMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}
