package service

import (
	"context"
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopershop/commerce-core/internal/gateway"
	"github.com/loopershop/commerce-core/internal/models"
	"github.com/loopershop/commerce-core/internal/observability"
)

// fakeGateway records calls and returns scripted results.
type fakeGateway struct {
	mu       sync.Mutex
	requests []*gateway.PaymentRequest
	result   *gateway.PaymentResult
	err      error
}

func (g *fakeGateway) RequestPayment(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.result, g.err
}

func (g *fakeGateway) GetPayment(ctx context.Context, userID int64, transactionKey string) (*gateway.PaymentResult, error) {
	return g.result, g.err
}

type testPaymentSetup struct {
	service     PaymentService
	paymentRepo *fakePaymentRepo
	orderRepo   *fakeOrderRepo
	outboxRepo  *fakeOutboxRepo
	gateway     *fakeGateway
	mockPool    pgxmock.PgxPoolIface
}

func setupPaymentService(t *testing.T) *testPaymentSetup {
	t.Helper()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	paymentRepo := newFakePaymentRepo()
	orderRepo := newFakeOrderRepo()
	outboxRepo := newFakeOutboxRepo()
	pg := &fakeGateway{}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetricsWithRegistry(registry)

	svc := NewPaymentService(mockPool, paymentRepo, orderRepo, outboxRepo, pg,
		"http://localhost/callback", metrics, zerolog.Nop())

	return &testPaymentSetup{
		service:     svc,
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		gateway:     pg,
		mockPool:    mockPool,
	}
}

func cardPtr(t models.CardType) *models.CardType { return &t }
func strPtr(s string) *string                    { return &s }

func TestPaymentService_PointsCoverEverything(t *testing.T) {
	setup := setupPaymentService(t)
	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	err := setup.service.HandlePaymentRequested(context.Background(), &models.PaymentRequestedPayload{
		OrderID:         10,
		UserID:          7,
		TotalAmount:     20_000,
		UsedPointAmount: 20_000,
	})
	require.NoError(t, err)

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Equal(t, int64(0), payment.PaidAmount)

	assert.Len(t, setup.outboxRepo.byType(models.EventTypePaymentCompleted), 1)
	assert.Empty(t, setup.gateway.requests, "no gateway call for point-only payments")
}

func TestPaymentService_MissingCardFails(t *testing.T) {
	setup := setupPaymentService(t)
	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	err := setup.service.HandlePaymentRequested(context.Background(), &models.PaymentRequestedPayload{
		OrderID:         11,
		UserID:          7,
		TotalAmount:     20_000,
		UsedPointAmount: 5_000,
	})
	require.NoError(t, err)

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 11)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	failed := setup.outboxRepo.byType(models.EventTypePaymentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, float64(5_000), failed[0].Payload["refundPointAmount"], "failure refunds the reserved points")
	assert.Equal(t, "MISSING_CARD", failed[0].Payload["reason"])
}

func TestPaymentService_CardPath_SuccessAfterCommit(t *testing.T) {
	setup := setupPaymentService(t)
	setup.gateway.result = &gateway.PaymentResult{
		Success:        true,
		TransactionKey: "tx-123",
		Status:         models.PaymentStatusSuccess,
	}

	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit() // create PENDING payment
	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit() // apply gateway result

	err := setup.service.HandlePaymentRequested(context.Background(), &models.PaymentRequestedPayload{
		OrderID:         12,
		UserID:          7,
		TotalAmount:     20_000,
		UsedPointAmount: 5_000,
		CardType:        cardPtr(models.CardTypeSamsung),
		CardNo:          strPtr("1234-5678-9012-3456"),
	})
	require.NoError(t, err)

	require.Len(t, setup.gateway.requests, 1)
	assert.Equal(t, int64(15_000), setup.gateway.requests[0].Amount, "gateway charges total minus points")

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 12)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	require.NotNil(t, payment.TransactionKey)
	assert.Equal(t, "tx-123", *payment.TransactionKey)

	assert.Len(t, setup.outboxRepo.byType(models.EventTypePaymentCompleted), 1)
}

func TestPaymentService_CardPath_DeclineEmitsFailure(t *testing.T) {
	setup := setupPaymentService(t)
	setup.gateway.result = &gateway.PaymentResult{
		Success:   false,
		ErrorCode: "LIMIT_EXCEEDED",
		Message:   "limit exceeded",
		Status:    models.PaymentStatusFailed,
	}

	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()
	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	err := setup.service.HandlePaymentRequested(context.Background(), &models.PaymentRequestedPayload{
		OrderID:         13,
		UserID:          7,
		TotalAmount:     20_000,
		UsedPointAmount: 4_000,
		CardType:        cardPtr(models.CardTypeSamsung),
		CardNo:          strPtr("1234-5678-9012-3456"),
	})
	require.NoError(t, err)

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 13)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	failed := setup.outboxRepo.byType(models.EventTypePaymentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "limit exceeded", failed[0].Payload["reason"])
	assert.Equal(t, float64(4_000), failed[0].Payload["refundPointAmount"])
}

func TestPaymentService_GatewayTimeoutLeavesPending(t *testing.T) {
	setup := setupPaymentService(t)
	setup.gateway.err = models.ErrUpstreamTimeout

	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	err := setup.service.HandlePaymentRequested(context.Background(), &models.PaymentRequestedPayload{
		OrderID:         14,
		UserID:          7,
		TotalAmount:     20_000,
		UsedPointAmount: 0,
		CardType:        cardPtr(models.CardTypeSamsung),
		CardNo:          strPtr("1234-5678-9012-3456"),
	})
	require.NoError(t, err, "a gateway exception must not fail the handler")

	payment, getErr := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 14)
	require.NoError(t, getErr)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Empty(t, setup.outboxRepo.eventTypes(), "no terminal event while pending")
}

func TestPaymentService_ReconcileAppliesLateSuccess(t *testing.T) {
	setup := setupPaymentService(t)

	key := "tx-late"
	setup.paymentRepo.payments[15] = &models.Payment{
		ID:             600,
		OrderID:        15,
		UserID:         7,
		TotalAmount:    20_000,
		UsedPoint:      0,
		PaidAmount:     20_000,
		Status:         models.PaymentStatusPending,
		TransactionKey: &key,
	}
	setup.gateway.result = &gateway.PaymentResult{
		Success:        true,
		TransactionKey: key,
		Status:         models.PaymentStatusSuccess,
	}

	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	require.NoError(t, setup.service.ReconcilePending(context.Background(), 0, 100))

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 15)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, payment.Status)
	assert.Len(t, setup.outboxRepo.byType(models.EventTypePaymentCompleted), 1)
}

func TestPaymentService_CouponAppliedRecomputesPayment(t *testing.T) {
	setup := setupPaymentService(t)

	setup.orderRepo.orders[16] = &models.Order{
		ID:          16,
		UserID:      7,
		Items:       []models.OrderItem{{ProductID: 1, Name: "sneaker", Price: 10_000, Quantity: 2}},
		TotalAmount: 20_000,
		Status:      models.OrderStatusPending,
	}
	setup.paymentRepo.payments[16] = &models.Payment{
		ID:          601,
		OrderID:     16,
		UserID:      7,
		TotalAmount: 20_000,
		UsedPoint:   5_000,
		PaidAmount:  15_000,
		Status:      models.PaymentStatusPending,
	}

	setup.mockPool.ExpectBegin()
	setup.mockPool.ExpectCommit()

	err := setup.service.HandleCouponApplied(context.Background(), &models.CouponAppliedPayload{
		OrderID:        16,
		CouponCode:     "WELCOME",
		DiscountAmount: 3_000,
	})
	require.NoError(t, err)

	order, err := setup.orderRepo.GetByID(context.Background(), 16)
	require.NoError(t, err)
	assert.Equal(t, int64(17_000), order.TotalAmount)
	assert.Equal(t, int64(3_000), order.DiscountAmount)

	payment, err := setup.paymentRepo.GetByOrderIDForUpdate(context.Background(), nil, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(12_000), payment.PaidAmount)
}
