// Package events publishes order domain events after the owning transaction
// has committed. Delivery is best effort: callers log a failed publish and
// carry on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-shop/internal/models"
)

type Type string

const (
	OrderCreated       Type = "order.created"
	OrderCancelled     Type = "order.cancelled"
	OrderStatusChanged Type = "order.status_changed"
)

type OrderEvent struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	OrderID        int64              `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	UserID         int64              `json:"user_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	Total          int64              `json:"total"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func NewOrderEvent(t Type, order *models.Order) OrderEvent {
	return OrderEvent{
		ID:          uuid.NewString(),
		Type:        t,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		Total:       order.Total,
		OccurredAt:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }
