// Package inventory owns per-product availability. Every stock change has an
// explicit direction and magnitude; there is no "set stock to X" path here.
package inventory

import (
	"context"
	"fmt"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

type Ledger struct {
	products store.ProductStore
}

func NewLedger(products store.ProductStore) *Ledger {
	return &Ledger{products: products}
}

// HasEnoughStock is read-only and fails with NotFound for unknown products.
func (l *Ledger) HasEnoughStock(ctx context.Context, productID int64, qty int) (bool, error) {
	product, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("check stock: %w", err)
	}
	return product.Stock >= qty, nil
}

// Reserve locks the product row for the rest of the surrounding transaction and
// fails with InvalidArgument when fewer than qty units are available. Nothing
// is consumed; DecrementStock does that.
func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) (*models.Product, error) {
	product, err := l.products.LockProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	if product.Stock < qty {
		return nil, apperr.InvalidArgument("insufficient stock for product %d: available %d, requested %d", productID, product.Stock, qty)
	}
	return product, nil
}

// DecrementStock never clamps: asking for more than is available is an
// InvalidArgument and leaves stock untouched.
func (l *Ledger) DecrementStock(ctx context.Context, productID int64, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, apperr.InvalidArgument("quantity must be a positive integer, got %d", qty)
	}

	product, err := l.products.DecrementStock(ctx, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	return product, nil
}

func (l *Ledger) IncrementStock(ctx context.Context, productID int64, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, apperr.InvalidArgument("quantity must be a positive integer, got %d", qty)
	}

	product, err := l.products.IncrementStock(ctx, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("increment stock: %w", err)
	}
	return product, nil
}
