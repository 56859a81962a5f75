// Package checkout turns a user's cart into a pending order. The whole
// conversion runs in one storage transaction: stock is validated and locked in
// a dry pass, then the order, its lines, the stock decrements and the removal
// of the ordered cart lines either all commit or all roll back.
package checkout

import (
	"context"
	"fmt"
	"math"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/events"
	"github.com/safar/go-sql-shop/internal/inventory"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"go.uber.org/zap"
)

type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger
}

func New(s store.Store, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{store: s, publisher: publisher, logger: logging.OrNop(logger)}
}

type pricedLine struct {
	line  models.CartLine
	price int64
}

// Checkout returns the created order without its lines.
func (s *Service) Checkout(ctx context.Context, userID int64) (*models.Order, error) {
	var (
		order *models.Order
		lines []pricedLine
	)

	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		if _, err := tx.Users().GetUser(ctx, userID); err != nil {
			return err
		}

		// Locked so a concurrent add-to-cart either lands before the read or
		// waits for this transaction to finish.
		cartLines, err := tx.CartLines().LockCartLines(ctx, userID)
		if err != nil {
			return err
		}
		if len(cartLines) == 0 {
			return apperr.InvalidArgument("cart is empty")
		}

		ledger := inventory.NewLedger(tx.Products())

		// Dry pass: nothing is written until every line has been validated.
		lines = make([]pricedLine, 0, len(cartLines))
		var total int64
		for _, line := range cartLines {
			product, err := ledger.Reserve(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			lines = append(lines, pricedLine{line: line, price: product.Price})
			if total, err = addSubtotal(total, line.Quantity, product.Price); err != nil {
				return err
			}
		}
		if total <= 0 {
			return apperr.InvalidArgument("order total must be positive, got %d", total)
		}

		order, err = tx.Orders().CreateOrder(ctx, userID, total)
		if err != nil {
			return err
		}

		ordered := make([]int64, 0, len(lines))
		for _, l := range lines {
			if _, err := tx.OrderLines().CreateOrderLine(ctx, order.ID, l.line.ProductID, l.line.Quantity, l.price); err != nil {
				return err
			}
			if _, err := ledger.DecrementStock(ctx, l.line.ProductID, l.line.Quantity); err != nil {
				return err
			}
			ordered = append(ordered, l.line.ID)
		}

		// Only the lines that went into the order are removed.
		_, err = tx.CartLines().DeleteCartLinesByID(ctx, ordered)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}

	s.logger.Info("checkout completed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.Total),
		zap.Int("lines", len(lines)),
	)

	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.NewOrderEvent(events.OrderCreated, order)); err != nil {
		s.logger.Warn("publish order event failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// addSubtotal adds qty*price to total, failing instead of wrapping.
func addSubtotal(total int64, qty int, price int64) (int64, error) {
	q := int64(qty)
	if q < 0 || price < 0 {
		return 0, apperr.InvalidArgument("negative quantity %d or price %d", qty, price)
	}
	if price != 0 && q > math.MaxInt64/price {
		return 0, apperr.InvalidArgument("line subtotal overflows: %d x %d", qty, price)
	}
	subtotal := q * price
	if total > math.MaxInt64-subtotal {
		return 0, apperr.InvalidArgument("order total overflows")
	}
	return total + subtotal, nil
}
