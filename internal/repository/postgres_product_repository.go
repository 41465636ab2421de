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

// PostgresProductRepository implements ProductRepository using PostgreSQL.
type PostgresProductRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresProductRepository creates a new PostgreSQL product repository.
func NewPostgresProductRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresProductRepository {
	return &PostgresProductRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_product_repository").Logger(),
	}
}

const productColumns = `id, name, price, stock, ref_brand_id, like_count, created_at`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.BrandID, &p.LikeCount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO product (name, price, stock, ref_brand_id, like_count, created_at)
		VALUES ($1, $2, $3, $4, 0, NOW())
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		product.Name,
		product.Price,
		product.Stock,
		product.BrandID,
	).Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("name", product.Name).Msg("failed to create product")
		return fmt.Errorf("create product: %w", err)
	}

	return nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM product WHERE id = $1`

	product, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.NewAppError(models.ErrorNotFound, "product %d not found", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func (r *PostgresProductRepository) GetByIDsForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) ([]*models.Product, error) {
	// Ascending id order keeps lock acquisition deadlock-free across
	// concurrent orders touching overlapping products.
	query := `
		SELECT ` + productColumns + `
		FROM product
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(products) != len(uniqueIDs(ids)) {
		return nil, models.NewAppError(models.ErrorNotFound, "one or more products not found")
	}

	return products, nil
}

func (r *PostgresProductRepository) UpdateStock(ctx context.Context, tx pgx.Tx, id int64, stock int64) error {
	query := `UPDATE product SET stock = $2 WHERE id = $1`

	result, err := tx.Exec(ctx, query, id, stock)
	if err != nil {
		r.logger.Error().Err(err).Int64("product_id", id).Msg("failed to update stock")
		return fmt.Errorf("update stock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.NewAppError(models.ErrorNotFound, "product %d not found", id)
	}

	return nil
}

func (r *PostgresProductRepository) SetLikeCount(ctx context.Context, id int64, likeCount int64) error {
	query := `UPDATE product SET like_count = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, likeCount); err != nil {
		return fmt.Errorf("set like count: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) List(ctx context.Context, brandID *int64, sort models.ProductSort, page, size int) ([]*models.Product, error) {
	orderBy := "created_at DESC"
	switch sort {
	case models.SortPriceAsc:
		orderBy = "price ASC"
	case models.SortLikesDesc:
		orderBy = "like_count DESC"
	case models.SortLatest:
	}

	args := []interface{}{size, page * size}
	where := ""
	if brandID != nil {
		where = "WHERE ref_brand_id = $3"
		args = append(args, *brandID)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM product %s ORDER BY %s LIMIT $1 OFFSET $2`,
		productColumns, where, orderBy,
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func (r *PostgresProductRepository) GetBrandsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Brand, error) {
	query := `SELECT id, name, created_at FROM brand WHERE id = ANY($1)`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get brands: %w", err)
	}
	defer rows.Close()

	brands := make(map[int64]*models.Brand, len(ids))
	for rows.Next() {
		var b models.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands[b.ID] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return brands, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// PostgresLikeRepository implements LikeRepository using PostgreSQL.
type PostgresLikeRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresLikeRepository creates a new PostgreSQL like repository.
func NewPostgresLikeRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresLikeRepository {
	return &PostgresLikeRepository{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_like_repository").Logger(),
	}
}

func (r *PostgresLikeRepository) Insert(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error) {
	query := `
		INSERT INTO likes (ref_user_id, ref_product_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (ref_user_id, ref_product_id) DO NOTHING
	`

	result, err := tx.Exec(ctx, query, userID, productID)
	if err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresLikeRepository) Delete(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error) {
	query := `DELETE FROM likes WHERE ref_user_id = $1 AND ref_product_id = $2`

	result, err := tx.Exec(ctx, query, userID, productID)
	if err != nil {
		return false, fmt.Errorf("delete like: %w", err)
	}
	return result.RowsAffected() > 0, nil
}
