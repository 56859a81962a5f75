package checkout

import (
	"context"
	"fmt"
	"testing"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/cart"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/orders"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/store/memstore"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Stock never goes negative and an unchanged catalogue ends up with
// initial = on hand + held by pending or later orders.
func TestStockInvariantUnderRandomOperations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := memstore.New()
		carts := cart.New(s, nil)
		checkouts := New(s, nil, nil)
		lifecycle := orders.NewLifecycle(s, nil, nil)

		var userIDs, productIDs []int64
		initial := make(map[int64]int)
		for i := 0; i < 3; i++ {
			user, err := s.CreateUser(ctx, fmt.Sprintf("u%d@example.com", i), "User")
			require.NoError(t, err)
			userIDs = append(userIDs, user.ID)

			stock := rapid.IntRange(0, 15).Draw(t, "stock")
			product, err := s.CreateProduct(ctx, store.NewProduct{
				Name:  fmt.Sprintf("product-%d", i),
				Price: rapid.Int64Range(1, 5000).Draw(t, "price"),
				Stock: stock,
			})
			require.NoError(t, err)
			productIDs = append(productIDs, product.ID)
			initial[product.ID] = stock
		}

		var orderIDs []int64
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				_, err := carts.AddToCart(ctx,
					rapid.SampledFrom(userIDs).Draw(t, "user"),
					rapid.SampledFrom(productIDs).Draw(t, "product"),
					rapid.IntRange(1, 6).Draw(t, "qty"),
				)
				if err != nil {
					require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
				}
			case 1:
				order, err := checkouts.Checkout(ctx, rapid.SampledFrom(userIDs).Draw(t, "user"))
				if err != nil {
					require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
					continue
				}
				orderIDs = append(orderIDs, order.ID)
			case 2:
				if len(orderIDs) == 0 {
					continue
				}
				_, err := lifecycle.CancelOrder(ctx, rapid.SampledFrom(orderIDs).Draw(t, "order"))
				if err != nil {
					require.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
				}
			}

			for _, id := range productIDs {
				product, err := s.GetProduct(ctx, id)
				require.NoError(t, err)
				require.GreaterOrEqual(t, product.Stock, 0)
			}
		}

		held := make(map[int64]int)
		for _, id := range orderIDs {
			order, err := lifecycle.GetOrder(ctx, id)
			require.NoError(t, err)
			if order.Status == models.OrderStatusCancelled {
				continue
			}
			lines, err := lifecycle.GetOrderLines(ctx, id)
			require.NoError(t, err)
			for _, line := range lines {
				held[line.ProductID] += line.Quantity
			}
		}
		for _, id := range productIDs {
			product, err := s.GetProduct(ctx, id)
			require.NoError(t, err)
			require.Equal(t, initial[id], product.Stock+held[id])
		}
	})
}
