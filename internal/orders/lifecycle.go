// Package orders owns the order status machine. The only enforced transition
// is cancellation, which is allowed from pending alone and gives every line's
// stock back. Administrative status updates may move an order between any two
// statuses.
package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/events"
	"github.com/safar/go-sql-shop/internal/inventory"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Lifecycle struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger
}

func NewLifecycle(s store.Store, publisher events.Publisher, logger *zap.Logger) *Lifecycle {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Lifecycle{store: s, publisher: publisher, logger: logging.OrNop(logger)}
}

// CreateOrder creates a pending order without going through a cart. It exists
// for administrative use; lines are attached with AddOrderLine.
func (l *Lifecycle) CreateOrder(ctx context.Context, userID, total int64) (*models.Order, error) {
	if total <= 0 {
		return nil, apperr.InvalidArgument("order total must be positive, got %d", total)
	}

	if _, err := l.store.Users().GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	order, err := l.store.Orders().CreateOrder(ctx, userID, total)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

func (l *Lifecycle) AddOrderLine(ctx context.Context, orderID, productID int64, qty int, price int64) (*models.OrderLine, error) {
	if qty <= 0 {
		return nil, apperr.InvalidArgument("quantity must be a positive integer, got %d", qty)
	}
	if price < 0 {
		return nil, apperr.InvalidArgument("price must not be negative, got %d", price)
	}

	line, err := l.store.OrderLines().CreateOrderLine(ctx, orderID, productID, qty, price)
	if err != nil {
		return nil, fmt.Errorf("add order line: %w", err)
	}
	return line, nil
}

// UpdateOrderLine always panics. Order lines are an immutable purchase record
// and calling this is a programming error.
func (l *Lifecycle) UpdateOrderLine(ctx context.Context, lineID int64, qty int) (*models.OrderLine, error) {
	panic(fmt.Sprintf("orders: order line %d is immutable and cannot be updated", lineID))
}

func (l *Lifecycle) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := l.store.Orders().GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (l *Lifecycle) GetOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	if _, err := l.store.Orders().GetOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}

	lines, err := l.store.OrderLines().ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	return lines, nil
}

func (l *Lifecycle) GetOrderLine(ctx context.Context, id int64) (*models.OrderLine, error) {
	line, err := l.store.OrderLines().GetOrderLine(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order line: %w", err)
	}
	return line, nil
}

func (l *Lifecycle) ListOrdersByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}

	page, err := l.store.Orders().ListOrdersByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}
	return page, nil
}

func (l *Lifecycle) ListOrders(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	page, pageSize = store.NormalizePage(page, pageSize)

	result, err := l.store.Orders().ListOrders(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return result, nil
}

// UpdateStatus sets any known status from any status.
func (l *Lifecycle) UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, apperr.InvalidArgument("unknown order status %q", status)
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		current, err := tx.Orders().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status

		order, err = tx.Orders().UpdateOrderStatus(ctx, id, status)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	l.logger.Info("order status changed",
		zap.Int64("order_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)

	event := events.NewOrderEvent(events.OrderStatusChanged, order)
	event.PreviousStatus = previous
	l.publish(ctx, event)

	return order, nil
}

// SetPaymentReference records an opaque payment provider reference. Stock is
// not touched.
func (l *Lifecycle) SetPaymentReference(ctx context.Context, id int64, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.InvalidArgument("payment reference must not be empty")
	}

	order, err := l.store.Orders().UpdatePaymentRef(ctx, id, ref)
	if err != nil {
		return nil, fmt.Errorf("set payment reference: %w", err)
	}
	return order, nil
}

// CancelOrder restores the stock of every line and marks the order cancelled.
// A failure part way through rolls back all restitutions.
func (l *Lifecycle) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	var (
		order *models.Order
		lines []models.OrderLine
	)

	err := l.store.WithinTx(ctx, func(tx store.Store) error {
		current, err := tx.Orders().LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != models.OrderStatusPending {
			return apperr.InvalidArgument("order %d cannot be cancelled from status %s", id, current.Status)
		}

		lines, err = tx.OrderLines().ListOrderLines(ctx, id)
		if err != nil {
			return err
		}

		ledger := inventory.NewLedger(tx.Products())
		for _, line := range lines {
			if _, err := ledger.IncrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		order, err = tx.Orders().UpdateOrderStatus(ctx, id, models.OrderStatusCancelled)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}

	l.logger.Info("order cancelled",
		zap.Int64("order_id", id),
		zap.Int64("user_id", order.UserID),
		zap.Int("lines_restored", len(lines)),
	)

	event := events.NewOrderEvent(events.OrderCancelled, order)
	event.PreviousStatus = models.OrderStatusPending
	l.publish(ctx, event)

	return order, nil
}

// DeleteOrder removes the order and its lines. Stock is not restored.
func (l *Lifecycle) DeleteOrder(ctx context.Context, id int64) error {
	if err := l.store.Orders().DeleteOrder(ctx, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func (l *Lifecycle) publish(ctx context.Context, event events.OrderEvent) {
	if err := l.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		l.logger.Warn("publish order event failed",
			zap.String("type", string(event.Type)),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}
