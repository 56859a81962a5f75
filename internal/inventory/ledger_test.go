package inventory

import (
	"context"
	"testing"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, stock int) (*Ledger, int64) {
	t.Helper()
	s := memstore.New()
	product, err := s.CreateProduct(context.Background(), store.NewProduct{Name: "Widget", Price: 250, Stock: stock})
	require.NoError(t, err)
	return NewLedger(s.Products()), product.ID
}

func TestHasEnoughStock(t *testing.T) {
	ctx := context.Background()
	ledger, id := newLedger(t, 50)

	ok, err := ledger.HasEnoughStock(ctx, id, 50)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.HasEnoughStock(ctx, id, 51)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ledger.HasEnoughStock(ctx, id+100, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDecrementStock(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		qty       int
		wantKind  apperr.Kind
		wantErr   bool
		wantStock int
	}{
		{name: "within stock", qty: 10, wantStock: 40},
		{name: "exact stock", qty: 50, wantStock: 0},
		{name: "exceeds stock", qty: 51, wantErr: true, wantKind: apperr.KindInvalidArgument, wantStock: 50},
		{name: "zero", qty: 0, wantErr: true, wantKind: apperr.KindInvalidArgument, wantStock: 50},
		{name: "negative", qty: -3, wantErr: true, wantKind: apperr.KindInvalidArgument, wantStock: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, id := newLedger(t, 50)

			product, err := ledger.DecrementStock(ctx, id, tt.qty)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantStock, product.Stock)
			}

			ok, err := ledger.HasEnoughStock(ctx, id, tt.wantStock)
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = ledger.HasEnoughStock(ctx, id, tt.wantStock+1)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDecrementStockMissingProduct(t *testing.T) {
	ledger, id := newLedger(t, 5)

	_, err := ledger.DecrementStock(context.Background(), id+1, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestIncrementStockHasNoUpperBound(t *testing.T) {
	ctx := context.Background()
	ledger, id := newLedger(t, 5)

	product, err := ledger.IncrementStock(ctx, id, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1005, product.Stock)

	_, err = ledger.IncrementStock(ctx, id, 0)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = ledger.IncrementStock(ctx, id+1, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestReserve(t *testing.T) {
	ctx := context.Background()
	ledger, id := newLedger(t, 8)

	product, err := ledger.Reserve(ctx, id, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(250), product.Price)
	assert.Equal(t, 8, product.Stock)

	_, err = ledger.Reserve(ctx, id, 9)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = ledger.Reserve(ctx, id+1, 1)
	assert.True(t, apperr.IsNotFound(err))
}
