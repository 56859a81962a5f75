// Package cart maintains each user's set of (product, quantity) lines. Adding a
// product the user already has merges into the existing line; stock is checked
// against the combined demand but is only consumed at checkout.
package cart

import (
	"context"
	"fmt"
	"math"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/inventory"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"go.uber.org/zap"
)

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func New(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logging.OrNop(logger)}
}

func (s *Service) AddToCart(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	if qty <= 0 {
		return nil, apperr.InvalidArgument("quantity must be a positive integer, got %d", qty)
	}

	line, err := s.mergeOrCreate(ctx, userID, productID, qty)
	if apperr.IsConflict(err) {
		// Another request created the line between our lookup and insert.
		s.logger.Debug("cart line created concurrently, merging",
			zap.Int64("user_id", userID),
			zap.Int64("product_id", productID),
		)
		line, err = s.mergeOrCreate(ctx, userID, productID, qty)
	}
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}
	return line, nil
}

func (s *Service) mergeOrCreate(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	var line *models.CartLine

	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		if _, err := tx.Users().GetUser(ctx, userID); err != nil {
			return err
		}

		existing, err := tx.CartLines().FindCartLine(ctx, userID, productID)
		if err != nil {
			return err
		}

		want := qty
		if existing != nil {
			if qty > math.MaxInt32-existing.Quantity {
				return apperr.InvalidArgument("quantity %d for product %d exceeds the cart line limit", qty, productID)
			}
			want += existing.Quantity
		}

		if err := checkStock(ctx, inventory.NewLedger(tx.Products()), productID, want); err != nil {
			return err
		}

		if existing != nil {
			line, err = tx.CartLines().UpdateCartLineQuantity(ctx, existing.ID, want)
			return err
		}
		line, err = tx.CartLines().CreateCartLine(ctx, userID, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateQuantity replaces the line's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, lineID int64, qty int) (*models.CartLine, error) {
	if qty <= 0 {
		return nil, apperr.InvalidArgument("quantity must be a positive integer, got %d", qty)
	}

	var line *models.CartLine
	err := s.store.WithinTx(ctx, func(tx store.Store) error {
		existing, err := tx.CartLines().GetCartLine(ctx, lineID)
		if err != nil {
			return err
		}

		if err := checkStock(ctx, inventory.NewLedger(tx.Products()), existing.ProductID, qty); err != nil {
			return err
		}

		line, err = tx.CartLines().UpdateCartLineQuantity(ctx, lineID, qty)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update cart quantity: %w", err)
	}
	return line, nil
}

func (s *Service) RemoveFromCart(ctx context.Context, lineID int64) error {
	if err := s.store.CartLines().DeleteCartLine(ctx, lineID); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// ClearCart succeeds on an empty cart.
func (s *Service) ClearCart(ctx context.Context, userID int64) error {
	deleted, err := s.store.CartLines().DeleteCartLines(ctx, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	s.logger.Debug("cart cleared", zap.Int64("user_id", userID), zap.Int64("lines", deleted))
	return nil
}

func (s *Service) GetCartByUserID(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines, err := s.store.CartLines().ListCartLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return lines, nil
}

func (s *Service) GetCartItem(ctx context.Context, lineID int64) (*models.CartLine, error) {
	line, err := s.store.CartLines().GetCartLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("get cart item: %w", err)
	}
	return line, nil
}

func checkStock(ctx context.Context, ledger *inventory.Ledger, productID int64, qty int) error {
	ok, err := ledger.HasEnoughStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidArgument("insufficient stock for product %d: requested %d", productID, qty)
	}
	return nil
}
