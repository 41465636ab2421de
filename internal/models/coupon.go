package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType is the tagged variant over supported discount shapes.
type CouponType string

const (
	CouponFixedAmount CouponType = "FIXED_AMOUNT"
	CouponPercentage  CouponType = "PERCENTAGE"
)

// Coupon is an issued coupon. Applied at most once per order.
type Coupon struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	Type          CouponType `json:"type"`
	DiscountValue int64      `json:"discount_value"` // amount for FIXED_AMOUNT, percent for PERCENTAGE
	Used          bool       `json:"used"`
	UsedOrderID   *int64     `json:"used_order_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Discount computes the discount a coupon yields on an order amount. A pure
// function over the variant; PERCENTAGE rounds half-up to whole units and the
// result never exceeds the order amount.
func Discount(orderAmount int64, couponType CouponType, discountValue int64) (int64, error) {
	if orderAmount < 0 {
		return 0, NewAppError(ErrorBadRequest, "order amount must not be negative: %d", orderAmount)
	}
	var discount int64
	switch couponType {
	case CouponFixedAmount:
		discount = discountValue
	case CouponPercentage:
		if discountValue < 0 || discountValue > 100 {
			return 0, NewAppError(ErrorBadRequest, "percentage must be 0-100: %d", discountValue)
		}
		discount = decimal.NewFromInt(orderAmount).
			Mul(decimal.NewFromInt(discountValue)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	default:
		return 0, NewAppError(ErrorBadRequest, "unknown coupon type: %q", couponType)
	}
	if discount < 0 {
		return 0, NewAppError(ErrorBadRequest, "discount must not be negative: %d", discount)
	}
	if discount > orderAmount {
		discount = orderAmount
	}
	return discount, nil
}

// Use marks the coupon consumed by an order. A used coupon cannot be reused.
func (c *Coupon) Use(orderID int64) error {
	if c.Used {
		return NewAppError(ErrorInvalidState, "coupon %s already used", c.Code)
	}
	c.Used = true
	c.UsedOrderID = &orderID
	return nil
}
