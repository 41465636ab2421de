package models

import "time"

// Product is the catalog aggregate. likeCount is denormalized and eventually
// consistent with the like table.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int64     `json:"stock"`
	BrandID   int64     `json:"brand_id"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProduct validates catalog fields. Stock and price must not be negative.
func NewProduct(name string, price, stock, brandID int64) (*Product, error) {
	if name == "" {
		return nil, NewAppError(ErrorBadRequest, "product name must not be empty")
	}
	if price < 0 {
		return nil, NewAppError(ErrorBadRequest, "product price must not be negative: %d", price)
	}
	if stock < 0 {
		return nil, NewAppError(ErrorBadRequest, "product stock must not be negative: %d", stock)
	}
	return &Product{Name: name, Price: price, Stock: stock, BrandID: brandID}, nil
}

// DecreaseStock reserves quantity units. Fails with INSUFFICIENT_STOCK; stock
// never goes negative at any committed state.
func (p *Product) DecreaseStock(quantity int64) error {
	if quantity <= 0 {
		return NewAppError(ErrorBadRequest, "quantity must be positive: %d", quantity)
	}
	if p.Stock < quantity {
		return NewAppError(ErrorInsufficientStock, "product %d: stock %d < requested %d", p.ID, p.Stock, quantity)
	}
	p.Stock -= quantity
	return nil
}

// IncreaseStock releases quantity units back, e.g. on order cancellation.
func (p *Product) IncreaseStock(quantity int64) error {
	if quantity <= 0 {
		return NewAppError(ErrorBadRequest, "quantity must be positive: %d", quantity)
	}
	p.Stock += quantity
	return nil
}

// Brand is immutable after creation.
type Brand struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Like is a (user, product) pair with a unique constraint. Addition is
// idempotent; removal of an absent row is a no-op.
type Like struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductSort orders catalog listings.
type ProductSort string

const (
	SortLatest    ProductSort = "latest"
	SortPriceAsc  ProductSort = "price_asc"
	SortLikesDesc ProductSort = "likes_desc"
)
