package models

// Typed payloads for the events crossing aggregate boundaries. The outbox
// stores them as JSON; consumers decode the subset they need.

// OrderItemPayload mirrors an order line inside event payloads.
type OrderItemPayload struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
	Price     int64 `json:"price"`
}

// OrderCreatedPayload is emitted when an order commits with its reservations.
type OrderCreatedPayload struct {
	OrderID         int64              `json:"orderId"`
	UserID          int64              `json:"userId"`
	Subtotal        int64              `json:"subtotal"`
	UsedPointAmount int64              `json:"usedPointAmount"`
	Items           []OrderItemPayload `json:"items"`
}

// PaymentRequestedPayload asks the payment handler to settle an order.
type PaymentRequestedPayload struct {
	OrderID         int64     `json:"orderId"`
	UserID          int64     `json:"userId"`
	TotalAmount     int64     `json:"totalAmount"`
	UsedPointAmount int64     `json:"usedPointAmount"`
	CardType        *CardType `json:"cardType,omitempty"`
	CardNo          *string   `json:"cardNo,omitempty"`
}

// PaymentCompletedPayload reports a successful settlement.
type PaymentCompletedPayload struct {
	OrderID        int64  `json:"orderId"`
	PaymentID      int64  `json:"paymentId"`
	TransactionKey string `json:"transactionKey,omitempty"`
}

// PaymentFailedPayload reports a failed settlement; refundPointAmount is the
// point reservation to release during compensation.
type PaymentFailedPayload struct {
	OrderID           int64  `json:"orderId"`
	PaymentID         int64  `json:"paymentId"`
	Reason            string `json:"reason"`
	RefundPointAmount int64  `json:"refundPointAmount"`
}

// CouponAppliedPayload carries a computed discount to the order and payment.
type CouponAppliedPayload struct {
	OrderID        int64  `json:"orderId"`
	CouponCode     string `json:"couponCode"`
	DiscountAmount int64  `json:"discountAmount"`
}

// LikeEventPayload is shared by like.added and like.removed.
type LikeEventPayload struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

// ProductViewedPayload is emitted on each detail read.
type ProductViewedPayload struct {
	ProductID int64 `json:"productId"`
}
