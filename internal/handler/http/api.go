package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/repository"
	"github.com/loopershop/commerce-core/internal/service"
)

// API is the thin JSON surface over the core services. It only parses
// requests and maps errors; all behavior lives in the service layer.
type API struct {
	users    service.UserService
	products service.ProductService
	likes    service.LikeService
	orders   service.OrderService
	coupons  service.CouponService
	ranks    repository.RankRepository
	logger   zerolog.Logger
}

// NewAPI creates the JSON API handler set.
func NewAPI(
	users service.UserService,
	products service.ProductService,
	likes service.LikeService,
	orders service.OrderService,
	coupons service.CouponService,
	ranks repository.RankRepository,
	logger zerolog.Logger,
) *API {
	return &API{
		users:    users,
		products: products,
		likes:    likes,
		orders:   orders,
		coupons:  coupons,
		ranks:    ranks,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Register mounts the routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/users", a.registerUser)
	mux.HandleFunc("POST /api/v1/users/{userId}/points", a.chargePoint)
	mux.HandleFunc("POST /api/v1/products", a.createProduct)
	mux.HandleFunc("GET /api/v1/products", a.listProducts)
	mux.HandleFunc("GET /api/v1/products/{productId}", a.getProduct)
	mux.HandleFunc("PUT /api/v1/products/{productId}/likes", a.addLike)
	mux.HandleFunc("DELETE /api/v1/products/{productId}/likes", a.removeLike)
	mux.HandleFunc("POST /api/v1/orders", a.createOrder)
	mux.HandleFunc("GET /api/v1/orders/{orderId}", a.getOrder)
	mux.HandleFunc("POST /api/v1/orders/{orderId}/cancel", a.cancelOrder)
	mux.HandleFunc("POST /api/v1/orders/{orderId}/coupon", a.useCoupon)
	mux.HandleFunc("GET /api/v1/rankings", a.getRankings)
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID    string `json:"userId"`
		Email     string `json:"email"`
		BirthDate string `json:"birthDate"`
		Gender    string `json:"gender"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	birthDate, err := time.Parse("2006-01-02", body.BirthDate)
	if err != nil {
		a.writeError(w, models.NewAppError(models.ErrorBadRequest, "invalid birth date: %q", body.BirthDate))
		return
	}

	user, err := a.users.Register(r.Context(), &service.RegisterUserRequest{
		UserID:    body.UserID,
		Email:     body.Email,
		BirthDate: birthDate,
		Gender:    models.Gender(body.Gender),
	})
	a.respond(w, user, err, http.StatusCreated)
}

func (a *API) chargePoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	user, err := a.users.ChargePoint(r.Context(), r.PathValue("userId"), body.Amount)
	a.respond(w, user, err, http.StatusOK)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var body service.CreateProductRequest
	if !a.decode(w, r, &body) {
		return
	}
	product, err := a.products.CreateProduct(r.Context(), &body)
	a.respond(w, product, err, http.StatusCreated)
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	req := &service.ListProductsRequest{
		Sort: models.ProductSort(queryOr(r, "sort", string(models.SortLatest))),
		Page: queryInt(r, "page", 0),
		Size: queryInt(r, "size", 20),
	}
	if brand := r.URL.Query().Get("brandId"); brand != "" {
		id, err := strconv.ParseInt(brand, 10, 64)
		if err != nil {
			a.writeError(w, models.NewAppError(models.ErrorBadRequest, "invalid brandId: %q", brand))
			return
		}
		req.BrandID = &id
	}

	details, err := a.products.ListProducts(r.Context(), req)
	a.respond(w, details, err, http.StatusOK)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := a.pathID(w, r, "productId")
	if !ok {
		return
	}
	detail, err := a.products.GetProduct(r.Context(), productID)
	a.respond(w, detail, err, http.StatusOK)
}

func (a *API) addLike(w http.ResponseWriter, r *http.Request) {
	userID, productID, ok := a.likeParams(w, r)
	if !ok {
		return
	}
	err := a.likes.AddLike(r.Context(), userID, productID)
	a.respond(w, map[string]string{"status": "liked"}, err, http.StatusOK)
}

func (a *API) removeLike(w http.ResponseWriter, r *http.Request) {
	userID, productID, ok := a.likeParams(w, r)
	if !ok {
		return
	}
	err := a.likes.RemoveLike(r.Context(), userID, productID)
	a.respond(w, map[string]string{"status": "unliked"}, err, http.StatusOK)
}

// likeParams reads the acting user from the X-USER-ID header and the product
// from the path.
func (a *API) likeParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, err := strconv.ParseInt(r.Header.Get("X-USER-ID"), 10, 64)
	if err != nil || userID <= 0 {
		a.writeError(w, models.NewAppError(models.ErrorBadRequest, "missing or invalid X-USER-ID header"))
		return 0, 0, false
	}
	productID, ok := a.pathID(w, r, "productId")
	if !ok {
		return 0, 0, false
	}
	return userID, productID, true
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var body service.CreateOrderRequest
	if !a.decode(w, r, &body) {
		return
	}
	order, err := a.orders.CreateOrder(r.Context(), &body)
	a.respond(w, order, err, http.StatusCreated)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := a.pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := a.orders.GetOrder(r.Context(), orderID)
	a.respond(w, order, err, http.StatusOK)
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := a.pathID(w, r, "orderId")
	if !ok {
		return
	}
	var body struct {
		RefundPoints int64 `json:"refundPoints"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	err := a.orders.CancelOrder(r.Context(), orderID, body.RefundPoints, "user_cancel")
	a.respond(w, map[string]string{"status": "canceled"}, err, http.StatusOK)
}

func (a *API) useCoupon(w http.ResponseWriter, r *http.Request) {
	orderID, ok := a.pathID(w, r, "orderId")
	if !ok {
		return
	}
	var body struct {
		CouponCode string `json:"couponCode"`
	}
	if !a.decode(w, r, &body) {
		return
	}
	err := a.coupons.UseCoupon(r.Context(), orderID, body.CouponCode)
	a.respond(w, map[string]string{"status": "applied"}, err, http.StatusOK)
}

func (a *API) getRankings(w http.ResponseWriter, r *http.Request) {
	periodType := models.PeriodType(queryOr(r, "period", string(models.PeriodWeekly)))
	target := time.Now()
	if date := r.URL.Query().Get("date"); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			a.writeError(w, models.NewAppError(models.ErrorBadRequest, "invalid date: %q", date))
			return
		}
		target = parsed
	}
	periodStart, _, err := models.PeriodRange(periodType, target)
	if err != nil {
		a.writeError(w, err)
		return
	}

	ranks, err := a.ranks.GetTopRanks(r.Context(), periodType, periodStart, queryInt(r, "limit", 100))
	a.respond(w, ranks, err, http.StatusOK)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, models.NewAppError(models.ErrorBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		a.writeError(w, models.NewAppError(models.ErrorBadRequest, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func (a *API) respond(w http.ResponseWriter, data interface{}, err error, status int) {
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps AppError kinds to HTTP status codes; everything else is a
// 500.
func (a *API) writeError(w http.ResponseWriter, err error) {
	appErr := &models.AppError{Type: models.ErrorInternal, Message: "internal error"}
	var typed *models.AppError
	if errors.As(err, &typed) {
		appErr = typed
	} else {
		a.logger.Error().Err(err).Msg("unclassified error")
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case models.ErrorBadRequest, models.ErrorInsufficientStock, models.ErrorInsufficientPoint:
		status = http.StatusBadRequest
	case models.ErrorNotFound:
		status = http.StatusNotFound
	case models.ErrorConflict, models.ErrorInvalidState:
		status = http.StatusConflict
	case models.ErrorUpstreamTimeout, models.ErrorCircuitOpen, models.ErrorUpstreamFailure:
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(appErr)
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
