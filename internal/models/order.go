package models

import "time"

// OrderStatus represents the state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// OrderItem is an immutable snapshot of a product at order time.
type OrderItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// Subtotal is price times quantity for this line.
func (i OrderItem) Subtotal() int64 {
	return i.Price * i.Quantity
}

// Order is the purchase aggregate. PENDING -> COMPLETED on payment success,
// PENDING -> CANCELED on payment failure or user cancel. Terminal states are
// sticky.
type Order struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"user_id"`
	Items          []OrderItem `json:"items"`
	CouponCode     *string     `json:"coupon_code,omitempty"`
	DiscountAmount int64       `json:"discount_amount"`
	TotalAmount    int64       `json:"total_amount"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewOrder builds a PENDING order from item snapshots. The total is the item
// subtotal sum; discounts apply later via coupon events.
func NewOrder(userID int64, items []OrderItem) (*Order, error) {
	if len(items) == 0 {
		return nil, NewAppError(ErrorBadRequest, "order must contain at least one item")
	}
	var total int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, NewAppError(ErrorBadRequest, "item quantity must be positive: product %d", item.ProductID)
		}
		total += item.Subtotal()
	}
	return &Order{
		UserID:      userID,
		Items:       items,
		TotalAmount: total,
		Status:      OrderStatusPending,
	}, nil
}

// IsTerminal reports whether the order reached a sticky final state.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCanceled
}

// Complete transitions PENDING -> COMPLETED.
func (o *Order) Complete() error {
	if o.Status != OrderStatusPending {
		return NewAppError(ErrorInvalidState, "order %d cannot complete from %s", o.ID, o.Status)
	}
	o.Status = OrderStatusCompleted
	return nil
}

// Cancel transitions PENDING -> CANCELED.
func (o *Order) Cancel() error {
	if o.Status != OrderStatusPending {
		return NewAppError(ErrorInvalidState, "order %d cannot cancel from %s", o.ID, o.Status)
	}
	o.Status = OrderStatusCanceled
	return nil
}

// ApplyDiscount records a coupon discount; permitted only in PENDING. The
// total is recomputed from the item sum so repeated application converges.
func (o *Order) ApplyDiscount(amount int64) error {
	if o.Status != OrderStatusPending {
		return NewAppError(ErrorInvalidState, "order %d cannot apply discount in %s", o.ID, o.Status)
	}
	if amount < 0 {
		return NewAppError(ErrorBadRequest, "discount must not be negative: %d", amount)
	}
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.Subtotal()
	}
	if amount > subtotal {
		amount = subtotal
	}
	o.DiscountAmount = amount
	o.TotalAmount = subtotal - amount
	return nil
}
