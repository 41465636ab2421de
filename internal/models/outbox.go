package models

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the publish state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is appended in the same transaction as the business mutation
// and later shipped to Kafka by the relay. For a fixed (aggregate_type,
// aggregate_id) the version strictly increases in commit order.
type OutboxEvent struct {
	ID            int64                  `json:"id" db:"id"`
	EventID       uuid.UUID              `json:"event_id" db:"event_id"`
	AggregateType string                 `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id" db:"aggregate_id"`
	EventType     string                 `json:"event_type" db:"event_type"`
	Payload       map[string]interface{} `json:"payload" db:"payload"`
	Topic         string                 `json:"topic" db:"topic"`
	PartitionKey  string                 `json:"partition_key" db:"partition_key"`
	Version       int64                  `json:"version" db:"version"`
	Status        OutboxStatus           `json:"status" db:"status"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
	PublishedAt   *time.Time             `json:"published_at,omitempty" db:"published_at"`
}

// EventHandled records an applied external event. The primary key on
// (event_id, consumer_group) enforces at-most-once effect per consumer group.
type EventHandled struct {
	EventID       uuid.UUID `json:"event_id"`
	ConsumerGroup string    `json:"consumer_group"`
	EventType     string    `json:"event_type"`
	Topic         string    `json:"topic"`
	HandledAt     time.Time `json:"handled_at"`
}

// AggregateType constants
const (
	AggregateTypeOrder   = "order"
	AggregateTypePayment = "payment"
	AggregateTypeProduct = "product"
	AggregateTypeCoupon  = "coupon"
	AggregateTypeUser    = "user"
)

// Kafka topics
const (
	TopicOrderEvents   = "order-events"
	TopicLikeEvents    = "like-events"
	TopicProductEvents = "product-events"
	TopicPaymentEvents = "payment-events"
	TopicCouponEvents  = "coupon-events"
	TopicUserEvents    = "user-events"
)

// Event type constants
const (
	EventTypeOrderCreated     = "order.created"
	EventTypeOrderCompleted   = "order.completed"
	EventTypeOrderCanceled    = "order.canceled"
	EventTypePaymentRequested = "payment.requested"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeCouponApplied    = "coupon.applied"
	EventTypeLikeAdded        = "like.added"
	EventTypeLikeRemoved      = "like.removed"
	EventTypeProductViewed    = "product.viewed"
	EventTypeUserRegistered   = "user.registered"
)

// Kafka record header keys attached by the relay.
const (
	HeaderEventID   = "eventId"
	HeaderEventType = "eventType"
	HeaderVersion   = "version"
)
