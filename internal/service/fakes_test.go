package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loopershop/commerce-core/internal/models"
)

// In-memory fakes for the repository interfaces. They ignore the pgx.Tx
// handle; transaction boundaries are asserted via the pgxmock pool.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[int64]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.UserID == user.UserID {
			return models.NewAppError(models.ErrorConflict, "user_id %q already registered", user.UserID)
		}
	}
	user.ID = int64(len(r.users) + 1)
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, models.NewAppError(models.ErrorNotFound, "user %q not found", userID)
}

func (r *fakeUserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.NewAppError(models.ErrorNotFound, "user %d not found", id)
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) UpdatePoint(ctx context.Context, tx pgx.Tx, id int64, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return models.NewAppError(models.ErrorNotFound, "user %d not found", id)
	}
	u.Point.Balance = balance
	return nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	brands   map[int64]*models.Brand
}

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: map[int64]*models.Product{}, brands: map[int64]*models.Brand{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *fakeProductRepo) Create(ctx context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	product.ID = int64(len(r.products) + 1)
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, models.NewAppError(models.ErrorNotFound, "product %d not found", id)
	}
	copied := *p
	return &copied, nil
}

func (r *fakeProductRepo) GetByIDsForUpdate(ctx context.Context, tx pgx.Tx, ids []int64) ([]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := r.products[id]
		if !ok {
			return nil, models.NewAppError(models.ErrorNotFound, "product %d not found", id)
		}
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeProductRepo) UpdateStock(ctx context.Context, tx pgx.Tx, id int64, stock int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return models.NewAppError(models.ErrorNotFound, "product %d not found", id)
	}
	p.Stock = stock
	return nil
}

func (r *fakeProductRepo) SetLikeCount(ctx context.Context, id int64, likeCount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		p.LikeCount = likeCount
	}
	return nil
}

func (r *fakeProductRepo) List(ctx context.Context, brandID *int64, sort models.ProductSort, page, size int) ([]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Product{}
	for _, p := range r.products {
		if brandID != nil && p.BrandID != *brandID {
			continue
		}
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeProductRepo) GetBrandsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Brand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]*models.Brand{}
	for _, id := range ids {
		if b, ok := r.brands[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
	nextID int64
}

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{orders: map[int64]*models.Order{}, nextID: 100}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (r *fakeOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	order.CreatedAt = time.Now()
	copied := *order
	r.orders[order.ID] = &copied
	return nil
}

func (r *fakeOrderRepo) get(id int64) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, models.NewAppError(models.ErrorNotFound, "order %d not found", id)
	}
	copied := *o
	copied.Items = append([]models.OrderItem(nil), o.Items...)
	return &copied, nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *fakeOrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return models.NewAppError(models.ErrorNotFound, "order %d not found", order.ID)
	}
	stored.Status = order.Status
	return nil
}

func (r *fakeOrderRepo) UpdateDiscount(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return models.NewAppError(models.ErrorNotFound, "order %d not found", order.ID)
	}
	stored.TotalAmount = order.TotalAmount
	stored.DiscountAmount = order.DiscountAmount
	stored.CouponCode = order.CouponCode
	return nil
}

func (r *fakeOrderRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[int64]*models.Payment // keyed by order id
	nextID   int64
}

func newFakePaymentRepo(payments ...*models.Payment) *fakePaymentRepo {
	repo := &fakePaymentRepo{payments: map[int64]*models.Payment{}, nextID: 500}
	for _, p := range payments {
		repo.payments[p.OrderID] = p
	}
	return repo
}

func (r *fakePaymentRepo) Create(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	payment.ID = r.nextID
	copied := *payment
	r.payments[payment.OrderID] = &copied
	return nil
}

func (r *fakePaymentRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok {
		return nil, models.NewAppError(models.ErrorNotFound, "payment for order %d not found", orderID)
	}
	copied := *p
	return &copied, nil
}

func (r *fakePaymentRepo) Update(ctx context.Context, tx pgx.Tx, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *payment
	r.payments[payment.OrderID] = &copied
	return nil
}

func (r *fakePaymentRepo) ListPendingWithKey(ctx context.Context, cutoffSeconds int, limit int) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Payment{}
	for _, p := range r.payments {
		if p.Status == models.PaymentStatusPending && p.TransactionKey != nil {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*models.Coupon
}

func newFakeCouponRepo(coupons ...*models.Coupon) *fakeCouponRepo {
	repo := &fakeCouponRepo{coupons: map[string]*models.Coupon{}}
	for _, c := range coupons {
		repo.coupons[c.Code] = c
	}
	return repo
}

func (r *fakeCouponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.coupons[coupon.Code]; ok {
		return models.NewAppError(models.ErrorConflict, "coupon %q already issued", coupon.Code)
	}
	r.coupons[coupon.Code] = coupon
	return nil
}

func (r *fakeCouponRepo) GetByCodeForUpdate(ctx context.Context, tx pgx.Tx, code string) (*models.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return nil, models.NewAppError(models.ErrorNotFound, "coupon %q not found", code)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCouponRepo) Update(ctx context.Context, tx pgx.Tx, coupon *models.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *coupon
	r.coupons[coupon.Code] = &copied
	return nil
}

// fakeOutboxRepo records appended events and assigns per-aggregate versions
// the way the unique index would.
type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*models.OutboxEvent
}

func newFakeOutboxRepo() *fakeOutboxRepo { return &fakeOutboxRepo{} }

func (r *fakeOutboxRepo) Append(ctx context.Context, tx pgx.Tx, event *models.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.EventID = uuid.New()
	event.Status = models.OutboxStatusPending
	event.CreatedAt = time.Now()
	var max int64
	for _, e := range r.events {
		if e.AggregateID == event.AggregateID && e.AggregateType == event.AggregateType && e.Version > max {
			max = e.Version
		}
	}
	event.Version = max + 1
	copied := *event
	r.events = append(r.events, &copied)
	return nil
}

func (r *fakeOutboxRepo) GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.OutboxEvent{}
	for _, e := range r.events {
		if e.Status == models.OutboxStatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventID == eventID {
			e.Status = models.OutboxStatusPublished
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, eventID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventID == eventID {
			e.Status = models.OutboxStatusFailed
		}
	}
	return nil
}

func (r *fakeOutboxRepo) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (r *fakeOutboxRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

func (r *fakeOutboxRepo) byType(eventType string) []*models.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.OutboxEvent{}
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeLikeRepo struct {
	mu    sync.Mutex
	pairs map[string]bool
}

func newFakeLikeRepo() *fakeLikeRepo { return &fakeLikeRepo{pairs: map[string]bool{}} }

func likeKey(userID, productID int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(productID, 10)
}

func (r *fakeLikeRepo) Insert(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := likeKey(userID, productID)
	if r.pairs[key] {
		return false, nil
	}
	r.pairs[key] = true
	return true, nil
}

func (r *fakeLikeRepo) Delete(ctx context.Context, tx pgx.Tx, userID, productID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := likeKey(userID, productID)
	if !r.pairs[key] {
		return false, nil
	}
	delete(r.pairs, key)
	return true, nil
}
