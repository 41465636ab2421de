package models

import "time"

// PaymentStatus represents the state of a payment. Terminal states are sticky.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// CardType identifies the card network accepted by the gateway.
type CardType string

const (
	CardTypeSamsung CardType = "SAMSUNG"
	CardTypeShinhan CardType = "SHINHAN"
	CardTypeKB      CardType = "KB"
)

// Payment tracks one attempt to settle an order. paidAmount is the total
// minus points and coupon discount.
type Payment struct {
	ID             int64         `json:"id"`
	OrderID        int64         `json:"order_id"`
	UserID         int64         `json:"user_id"`
	TotalAmount    int64         `json:"total_amount"`
	UsedPoint      int64         `json:"used_point"`
	PaidAmount     int64         `json:"paid_amount"`
	CardType       *CardType     `json:"card_type,omitempty"`
	CardNo         *string       `json:"card_no,omitempty"`
	Status         PaymentStatus `json:"status"`
	TransactionKey *string       `json:"transaction_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewPayment builds a PENDING payment for an order.
func NewPayment(orderID, userID, totalAmount, usedPoint int64) (*Payment, error) {
	if usedPoint < 0 || usedPoint > totalAmount {
		return nil, NewAppError(ErrorBadRequest, "used point %d out of range for total %d", usedPoint, totalAmount)
	}
	return &Payment{
		OrderID:     orderID,
		UserID:      userID,
		TotalAmount: totalAmount,
		UsedPoint:   usedPoint,
		PaidAmount:  totalAmount - usedPoint,
		Status:      PaymentStatusPending,
	}, nil
}

// IsTerminal reports whether the payment reached a sticky final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// Succeed transitions PENDING -> SUCCESS, recording the gateway key.
func (p *Payment) Succeed(transactionKey string) error {
	if p.Status != PaymentStatusPending {
		return NewAppError(ErrorInvalidState, "payment %d cannot succeed from %s", p.ID, p.Status)
	}
	p.Status = PaymentStatusSuccess
	if transactionKey != "" {
		p.TransactionKey = &transactionKey
	}
	return nil
}

// Fail transitions PENDING -> FAILED.
func (p *Payment) Fail() error {
	if p.Status != PaymentStatusPending {
		return NewAppError(ErrorInvalidState, "payment %d cannot fail from %s", p.ID, p.Status)
	}
	p.Status = PaymentStatusFailed
	return nil
}

// Recalculate updates paidAmount after a coupon changed the order total.
// Only meaningful while PENDING.
func (p *Payment) Recalculate(newTotal int64) error {
	if p.Status != PaymentStatusPending {
		return NewAppError(ErrorInvalidState, "payment %d cannot recalculate in %s", p.ID, p.Status)
	}
	usedPoint := p.UsedPoint
	if usedPoint > newTotal {
		usedPoint = newTotal
	}
	p.TotalAmount = newTotal
	p.UsedPoint = usedPoint
	p.PaidAmount = newTotal - usedPoint
	return nil
}
