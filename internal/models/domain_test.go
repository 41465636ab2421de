package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_Arithmetic(t *testing.T) {
	p := Point{Balance: 1000}

	added, err := p.Add(500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), added.Balance)
	assert.Equal(t, int64(1000), p.Balance, "Add must not mutate the receiver")

	subtracted, err := added.Subtract(1500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), subtracted.Balance)

	_, err = subtracted.Subtract(1)
	assert.ErrorIs(t, err, ErrInsufficientPoint)

	_, err = p.Add(-1)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrorBadRequest, appErr.Type)
}

func TestProduct_Stock(t *testing.T) {
	product := &Product{ID: 1, Name: "sneaker", Price: 10_000, Stock: 3}

	require.NoError(t, product.DecreaseStock(2))
	assert.Equal(t, int64(1), product.Stock)

	err := product.DecreaseStock(2)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, int64(1), product.Stock, "failed decrease must not change stock")

	require.NoError(t, product.IncreaseStock(2))
	assert.Equal(t, int64(3), product.Stock)

	assert.Error(t, product.DecreaseStock(0))
	assert.Error(t, product.IncreaseStock(-1))
}

func TestNewUser_Validation(t *testing.T) {
	birth := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)

	user, err := NewUser("abc123", "abc@example.com", birth, GenderFemale)
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.Point.Balance)

	cases := []struct {
		name   string
		userID string
		email  string
		gender Gender
	}{
		{"user id too long", "abcdefghijk", "a@b.com", GenderMale},
		{"user id with symbol", "abc-1", "a@b.com", GenderMale},
		{"empty user id", "", "a@b.com", GenderMale},
		{"bad email", "abc123", "not-an-email", GenderMale},
		{"bad gender", "abc123", "a@b.com", Gender("OTHER")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewUser(tc.userID, tc.email, birth, tc.gender)
			assert.Error(t, err)
		})
	}
}

func TestOrder_StateMachine(t *testing.T) {
	items := []OrderItem{{ProductID: 1, Name: "sneaker", Price: 10_000, Quantity: 2}}

	order, err := NewOrder(7, items)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, int64(20_000), order.TotalAmount)

	require.NoError(t, order.Complete())
	assert.Equal(t, OrderStatusCompleted, order.Status)

	// Terminal states are sticky.
	assert.ErrorIs(t, order.Complete(), ErrInvalidState)
	assert.ErrorIs(t, order.Cancel(), ErrInvalidState)
	assert.ErrorIs(t, order.ApplyDiscount(100), ErrInvalidState)

	canceled, err := NewOrder(7, items)
	require.NoError(t, err)
	require.NoError(t, canceled.Cancel())
	assert.ErrorIs(t, canceled.Complete(), ErrInvalidState)
}

func TestOrder_ApplyDiscount(t *testing.T) {
	order, err := NewOrder(7, []OrderItem{{ProductID: 1, Name: "sneaker", Price: 10_000, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, order.ApplyDiscount(3_000))
	assert.Equal(t, int64(17_000), order.TotalAmount)
	assert.Equal(t, int64(3_000), order.DiscountAmount)

	// Reapplying recomputes from the item subtotal, so it converges.
	require.NoError(t, order.ApplyDiscount(5_000))
	assert.Equal(t, int64(15_000), order.TotalAmount)

	// A discount above the subtotal clamps to free.
	require.NoError(t, order.ApplyDiscount(100_000))
	assert.Equal(t, int64(0), order.TotalAmount)
}

func TestDiscount_Variants(t *testing.T) {
	fixed, err := Discount(20_000, CouponFixedAmount, 3_000)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), fixed)

	pct, err := Discount(19_999, CouponPercentage, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), pct, "percentage rounds half-up")

	clamped, err := Discount(1_000, CouponFixedAmount, 5_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), clamped)

	_, err = Discount(1_000, CouponPercentage, 150)
	assert.Error(t, err)

	_, err = Discount(1_000, CouponType("BOGOF"), 1)
	assert.Error(t, err)
}

func TestCoupon_Use(t *testing.T) {
	coupon := &Coupon{Code: "WELCOME", Type: CouponFixedAmount, DiscountValue: 1_000}

	require.NoError(t, coupon.Use(42))
	assert.True(t, coupon.Used)
	require.NotNil(t, coupon.UsedOrderID)
	assert.Equal(t, int64(42), *coupon.UsedOrderID)

	assert.ErrorIs(t, coupon.Use(43), ErrInvalidState)
}

func TestPayment_Transitions(t *testing.T) {
	payment, err := NewPayment(10, 7, 20_000, 20_000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), payment.PaidAmount)

	require.NoError(t, payment.Succeed("tx-1"))
	assert.ErrorIs(t, payment.Fail(), ErrInvalidState)
	assert.ErrorIs(t, payment.Succeed("tx-2"), ErrInvalidState)

	_, err = NewPayment(10, 7, 20_000, 30_000)
	assert.Error(t, err, "used point cannot exceed total")
}

func TestPayment_Recalculate(t *testing.T) {
	payment, err := NewPayment(10, 7, 20_000, 5_000)
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), payment.PaidAmount)

	require.NoError(t, payment.Recalculate(17_000))
	assert.Equal(t, int64(12_000), payment.PaidAmount)

	// A coupon may drop the total under the reserved points.
	require.NoError(t, payment.Recalculate(3_000))
	assert.Equal(t, int64(3_000), payment.UsedPoint)
	assert.Equal(t, int64(0), payment.PaidAmount)

	require.NoError(t, payment.Succeed(""))
	assert.ErrorIs(t, payment.Recalculate(1_000), ErrInvalidState)
}

func TestPeriodRange(t *testing.T) {
	// 2024-05-15 is a Wednesday.
	target := time.Date(2024, 5, 15, 13, 45, 0, 0, time.UTC)

	start, end, err := PeriodRange(PeriodWeekly, target)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), start, "weekly starts Monday")
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), end)

	start, end, err = PeriodRange(PeriodMonthly, target)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), end)

	// A Monday is its own week start.
	monday := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	start, _, err = PeriodRange(PeriodWeekly, monday)
	require.NoError(t, err)
	assert.Equal(t, monday, start)

	_, _, err = PeriodRange(PeriodType("DAILY"), target)
	assert.Error(t, err)
}
