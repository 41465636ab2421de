package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/cache"
	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
	"github.com/loopershop/commerce-core/internal/repository"
)

// ProductServiceImpl implements the ProductService interface
type ProductServiceImpl struct {
	db          Database
	productRepo repository.ProductRepository
	outboxRepo  repository.OutboxRepository
	cache       *cache.ProductCache
	metrics     *observability.Metrics
	logger      zerolog.Logger
	validator   *validator.Validate
}

// NewProductService creates a new product service instance
func NewProductService(
	db Database,
	productRepo repository.ProductRepository,
	outboxRepo repository.OutboxRepository,
	productCache *cache.ProductCache,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) ProductService {
	return &ProductServiceImpl{
		db:          db,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		cache:       productCache,
		metrics:     metrics,
		logger:      logger.With().Str("component", "product_service").Logger(),
		validator:   validator.New(),
	}
}

// GetProduct reads a product detail through the cache and records the view
// via a product.viewed outbox event.
func (s *ProductServiceImpl) GetProduct(ctx context.Context, productID int64) (*ProductDetail, error) {
	var detail *ProductDetail

	key := cache.DetailKey(productID)
	cached, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache read failed, falling through to database")
	}
	if hit {
		s.metrics.CacheHits.WithLabelValues("detail").Inc()
		var d ProductDetail
		if err := json.Unmarshal([]byte(cached), &d); err == nil {
			detail = &d
		}
	}

	if detail == nil {
		s.metrics.CacheMisses.WithLabelValues("detail").Inc()
		product, err := s.productRepo.GetByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		brands, err := s.productRepo.GetBrandsByIDs(ctx, []int64{product.BrandID})
		if err != nil {
			return nil, err
		}
		detail = &ProductDetail{Product: product, Brand: brands[product.BrandID]}

		if encoded, err := json.Marshal(detail); err == nil {
			if err := s.cache.Set(ctx, key, string(encoded)); err != nil {
				s.logger.Warn().Err(err).Msg("cache write failed")
			}
		}
	}

	if err := s.recordView(ctx, productID); err != nil {
		s.logger.Warn().Err(err).Int64("product_id", productID).Msg("failed to record product view")
	}

	return detail, nil
}

// recordView appends a product.viewed outbox event in its own transaction.
func (s *ProductServiceImpl) recordView(ctx context.Context, productID int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	productKey := strconv.FormatInt(productID, 10)
	if err := s.outboxRepo.Append(ctx, tx, &models.OutboxEvent{
		AggregateType: models.AggregateTypeProduct,
		AggregateID:   productKey,
		EventType:     models.EventTypeProductViewed,
		Topic:         models.TopicProductEvents,
		PartitionKey:  productKey,
		Payload:       toPayload(models.ProductViewedPayload{ProductID: productID}),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListProducts pages catalog listings. Only page 0 goes through the cache;
// deep pagination is rare and keeps the cache footprint small.
func (s *ProductServiceImpl) ListProducts(ctx context.Context, req *ListProductsRequest) ([]*ProductDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewAppError(models.ErrorBadRequest, "validation failed: %v", err)
	}

	cacheable := req.Page == 0
	key := cache.ListKey(req.BrandID, req.Sort, req.Page, req.Size)

	if cacheable {
		cached, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache read failed, falling through to database")
		}
		if hit {
			s.metrics.CacheHits.WithLabelValues("list").Inc()
			var details []*ProductDetail
			if err := json.Unmarshal([]byte(cached), &details); err == nil {
				return details, nil
			}
		}
		s.metrics.CacheMisses.WithLabelValues("list").Inc()
	}

	products, err := s.productRepo.List(ctx, req.BrandID, req.Sort, req.Page, req.Size)
	if err != nil {
		return nil, err
	}

	// Batch-load brands for the page to avoid N+1.
	brandIDs := make([]int64, 0, len(products))
	seen := make(map[int64]struct{}, len(products))
	for _, p := range products {
		if _, ok := seen[p.BrandID]; !ok {
			seen[p.BrandID] = struct{}{}
			brandIDs = append(brandIDs, p.BrandID)
		}
	}
	brands := map[int64]*models.Brand{}
	if len(brandIDs) > 0 {
		brands, err = s.productRepo.GetBrandsByIDs(ctx, brandIDs)
		if err != nil {
			return nil, err
		}
	}

	details := make([]*ProductDetail, 0, len(products))
	for _, p := range products {
		details = append(details, &ProductDetail{Product: p, Brand: brands[p.BrandID]})
	}

	if cacheable {
		if encoded, err := json.Marshal(details); err == nil {
			if err := s.cache.Set(ctx, key, string(encoded)); err != nil {
				s.logger.Warn().Err(err).Msg("cache write failed")
			}
		}
	}

	return details, nil
}

// CreateProduct registers a product and evicts listing caches so the new
// item becomes visible within a page load.
func (s *ProductServiceImpl) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, models.NewAppError(models.ErrorBadRequest, "validation failed: %v", err)
	}

	product, err := models.NewProduct(req.Name, req.Price, req.Stock, req.BrandID)
	if err != nil {
		return nil, err
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateListings(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("listing cache invalidation failed")
	}

	s.logger.Info().Int64("product_id", product.ID).Str("name", product.Name).Msg("product created")
	return product, nil
}
