package cart

import (
	"context"
	"math"
	"testing"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fixture struct {
	store   *memstore.Store
	service *Service
	user    *models.User
	product *models.Product
}

func setup(t *testing.T, stock int) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	user, err := s.CreateUser(ctx, "shopper@example.com", "Shopper")
	require.NoError(t, err)
	product, err := s.CreateProduct(ctx, store.NewProduct{Name: "Kettle", Price: 2999, Stock: stock})
	require.NoError(t, err)

	return &fixture{store: s, service: New(s, nil), user: user, product: product}
}

func TestAddToCartMergesExistingLine(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 50)

	first, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 3)
	require.NoError(t, err)
	second, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	lines, err := f.service.GetCartByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
}

func TestAddToCartChecksCombinedQuantity(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 5)

	_, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 4)
	require.NoError(t, err)

	_, err = f.service.AddToCart(ctx, f.user.ID, f.product.ID, 2)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	lines, err := f.service.GetCartByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)
}

func TestAddToCartRejectsQuantityThatWouldWrap(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 50)

	_, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 3)
	require.NoError(t, err)

	_, err = f.service.AddToCart(ctx, f.user.ID, f.product.ID, math.MaxInt)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.service.AddToCart(ctx, f.user.ID, f.product.ID, math.MaxInt32)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	lines, err := f.service.GetCartByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestAddToCartRejections(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 50)

	tests := []struct {
		name      string
		userID    int64
		productID int64
		qty       int
		want      apperr.Kind
	}{
		{name: "insufficient stock", userID: f.user.ID, productID: f.product.ID, qty: 999, want: apperr.KindInvalidArgument},
		{name: "zero quantity", userID: f.user.ID, productID: f.product.ID, qty: 0, want: apperr.KindInvalidArgument},
		{name: "negative quantity", userID: f.user.ID, productID: f.product.ID, qty: -1, want: apperr.KindInvalidArgument},
		{name: "unknown user", userID: 9999, productID: f.product.ID, qty: 1, want: apperr.KindNotFound},
		{name: "unknown product", userID: f.user.ID, productID: 9999, qty: 1, want: apperr.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.AddToCart(ctx, tt.userID, tt.productID, tt.qty)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}

	lines, err := f.service.GetCartByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestAddToCartRetriesConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 50)

	f.store.FailOn("CreateCartLine", 1, apperr.Conflict("duplicate cart line"))

	line, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
}

func TestAddToCartSurfacesRepeatedConflict(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 50)

	f.store.FailOn("FindCartLine", 1, apperr.Conflict("duplicate cart line"))
	f.store.FailOn("CreateCartLine", 1, apperr.Conflict("duplicate cart line"))

	_, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 2)
	assert.True(t, apperr.IsConflict(err))
}

func TestUpdateQuantityReplaces(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10)

	line, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 3)
	require.NoError(t, err)

	updated, err := f.service.UpdateQuantity(ctx, line.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)

	_, err = f.service.UpdateQuantity(ctx, line.ID, 11)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.service.UpdateQuantity(ctx, line.ID, 0)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.service.UpdateQuantity(ctx, line.ID+100, 1)
	assert.True(t, apperr.IsNotFound(err))

	current, err := f.service.GetCartItem(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, current.Quantity)
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 10)

	require.NoError(t, f.service.ClearCart(ctx, f.user.ID))
	require.NoError(t, f.service.ClearCart(ctx, f.user.ID))

	line, err := f.service.AddToCart(ctx, f.user.ID, f.product.ID, 1)
	require.NoError(t, err)

	require.NoError(t, f.service.RemoveFromCart(ctx, line.ID))
	assert.True(t, apperr.IsNotFound(f.service.RemoveFromCart(ctx, line.ID)))

	_, err = f.service.GetCartItem(ctx, line.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.service.AddToCart(ctx, f.user.ID, f.product.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.service.ClearCart(ctx, f.user.ID))

	lines, err := f.service.GetCartByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestAtMostOneLinePerProduct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := memstore.New()
		service := New(s, nil)

		var userIDs, productIDs []int64
		for _, email := range []string{"ann@example.com", "bob@example.com"} {
			user, err := s.CreateUser(ctx, email, "User")
			require.NoError(t, err)
			userIDs = append(userIDs, user.ID)
		}
		for i, name := range []string{"A", "B", "C"} {
			product, err := s.CreateProduct(ctx, store.NewProduct{Name: name, Price: int64(100 * (i + 1)), Stock: rapid.IntRange(0, 20).Draw(t, "stock")})
			require.NoError(t, err)
			productIDs = append(productIDs, product.ID)
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			userID := rapid.SampledFrom(userIDs).Draw(t, "user")
			productID := rapid.SampledFrom(productIDs).Draw(t, "product")
			qty := rapid.IntRange(-1, 8).Draw(t, "qty")

			_, err := service.AddToCart(ctx, userID, productID, qty)
			if err != nil {
				require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
			}
		}

		for _, userID := range userIDs {
			lines, err := service.GetCartByUserID(ctx, userID)
			require.NoError(t, err)

			seen := make(map[int64]bool)
			for _, line := range lines {
				require.False(t, seen[line.ProductID], "duplicate line for product %d", line.ProductID)
				seen[line.ProductID] = true
				require.Positive(t, line.Quantity)

				product, err := s.GetProduct(ctx, line.ProductID)
				require.NoError(t, err)
				require.LessOrEqual(t, line.Quantity, product.Stock)
			}
		}
	})
}
