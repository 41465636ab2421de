package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/loopershop/commerce-core/internal/models"
)

// ProductRepository defines data access for the product catalog.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, product *models.Product) error

	// GetByID retrieves a product by id.
	// Returns NOT_FOUND if the product doesn't exist.
	GetByID(ctx context.Context, id int64) (*models.Product, error)

	// GetByIDsForUpdate retrieves products with FOR UPDATE locks, ordered by
	// ascending id for deadlock avoidance.
	// MUST be called within a transaction.
	// Returns NOT_FOUND unless every requested id exists.
	GetByIDsForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) ([]*models.Product, error)

	// UpdateStock persists the stock of a locked product row.
	// MUST be called within a transaction.
	UpdateStock(ctx context.Context, tx pgx.Tx, id int64, stock int64) error

	// SetLikeCount overwrites the denormalized like counter. Called from the
	// metrics consumer, eventually consistent with the like table.
	SetLikeCount(ctx context.Context, id int64, likeCount int64) error

	// List pages the catalog. brandID nil means all brands.
	List(ctx context.Context, brandID *int64, sort models.ProductSort, page, size int) ([]*models.Product, error)

	// GetBrandsByIDs batch-loads brands into a map to avoid N+1 on listings.
	GetBrandsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Brand, error)
}

// LikeRepository defines data access for (user, product) like pairs.
type LikeRepository interface {
	// Insert adds a like; the unique pair makes it idempotent.
	// Returns true only when a row was actually inserted.
	Insert(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error)

	// Delete removes a like; absent rows are a no-op.
	// Returns true only when a row was actually deleted.
	Delete(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error)
}
