package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loopershop/commerce-core/internal/models"
)

// In-memory fakes for the consumer-side repositories. The pgx.Tx handle is
// ignored; transaction boundaries are asserted via the pgxmock pool.

type fakeMetricsRepo struct {
	mu   sync.Mutex
	rows map[int64]*models.ProductMetrics
}

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{rows: map[int64]*models.ProductMetrics{}}
}

func (r *fakeMetricsRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, productID int64) (*models.ProductMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[productID]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMetricsRepo) Create(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[metrics.ProductID]; ok {
		return models.NewAppError(models.ErrorConflict, "metrics row for product %d already exists", metrics.ProductID)
	}
	metrics.UpdatedAt = time.Now()
	copied := *metrics
	r.rows[metrics.ProductID] = &copied
	return nil
}

func (r *fakeMetricsRepo) Update(ctx context.Context, tx pgx.Tx, metrics *models.ProductMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics.UpdatedAt = time.Now()
	copied := *metrics
	r.rows[metrics.ProductID] = &copied
	return nil
}

func (r *fakeMetricsRepo) ListUpdatedInRange(ctx context.Context, afterProductID int64, periodStart, periodEnd time.Time, limit int) ([]*models.ProductMetrics, error) {
	return nil, nil
}

type fakeHandledRepo struct {
	mu      sync.Mutex
	handled map[string]struct{}
}

func newFakeHandledRepo() *fakeHandledRepo {
	return &fakeHandledRepo{handled: map[string]struct{}{}}
}

func handledKey(group string, eventID uuid.UUID) string {
	return group + "/" + eventID.String()
}

func (r *fakeHandledRepo) IsHandled(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handled[handledKey(group, eventID)]
	return ok, nil
}

func (r *fakeHandledRepo) MarkHandled(ctx context.Context, tx pgx.Tx, group string, eventID uuid.UUID, eventType, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled[handledKey(group, eventID)] = struct{}{}
	return nil
}

type fakeLikeCountSetter struct {
	mu     sync.Mutex
	counts map[int64]int64
}

func newFakeLikeCountSetter() *fakeLikeCountSetter {
	return &fakeLikeCountSetter{counts: map[int64]int64{}}
}

func (s *fakeLikeCountSetter) SetLikeCount(ctx context.Context, id int64, likeCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[id] = likeCount
	return nil
}
