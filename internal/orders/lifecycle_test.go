package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/events"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"github.com/safar/go-sql-shop/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memstore.Store
	events    *events.Recorder
	lifecycle *Lifecycle
	user      *models.User
	products  []*models.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	user, err := s.CreateUser(ctx, "orders@example.com", "Orders")
	require.NoError(t, err)

	var products []*models.Product
	for _, p := range []store.NewProduct{
		{Name: "Desk", Price: 12000, Stock: 10},
		{Name: "Chair", Price: 4500, Stock: 20},
	} {
		product, err := s.CreateProduct(ctx, p)
		require.NoError(t, err)
		products = append(products, product)
	}

	recorder := &events.Recorder{}
	return &fixture{
		store:     s,
		events:    recorder,
		lifecycle: NewLifecycle(s, recorder, nil),
		user:      user,
		products:  products,
	}
}

// placeOrder mimics a committed checkout: an order with two lines whose stock
// has already been taken.
func (f *fixture) placeOrder(t *testing.T) *models.Order {
	t.Helper()
	ctx := context.Background()

	order, err := f.lifecycle.CreateOrder(ctx, f.user.ID, 2*12000+3*4500)
	require.NoError(t, err)

	for i, qty := range []int{2, 3} {
		_, err := f.lifecycle.AddOrderLine(ctx, order.ID, f.products[i].ID, qty, f.products[i].Price)
		require.NoError(t, err)
		_, err = f.store.DecrementStock(ctx, f.products[i].ID, qty)
		require.NoError(t, err)
	}
	return order
}

func (f *fixture) stock(t *testing.T, i int) int {
	t.Helper()
	product, err := f.store.GetProduct(context.Background(), f.products[i].ID)
	require.NoError(t, err)
	return product.Stock
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	order, err := f.lifecycle.CreateOrder(ctx, f.user.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(500), order.Total)
	assert.NotEmpty(t, order.OrderNumber)

	_, err = f.lifecycle.CreateOrder(ctx, f.user.ID, 0)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.lifecycle.CreateOrder(ctx, 999, 500)
	assert.True(t, apperr.IsNotFound(err))
}

func TestAddOrderLineValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	order, err := f.lifecycle.CreateOrder(ctx, f.user.ID, 500)
	require.NoError(t, err)

	_, err = f.lifecycle.AddOrderLine(ctx, order.ID, f.products[0].ID, 0, 100)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.lifecycle.AddOrderLine(ctx, order.ID, f.products[0].ID, 1, -1)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.lifecycle.AddOrderLine(ctx, order.ID+100, f.products[0].ID, 1, 100)
	assert.True(t, apperr.IsNotFound(err))

	line, err := f.lifecycle.AddOrderLine(ctx, order.ID, f.products[0].ID, 2, 0)
	require.NoError(t, err)

	got, err := f.lifecycle.GetOrderLine(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, *line, *got)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	require.Equal(t, 8, f.stock(t, 0))
	require.Equal(t, 17, f.stock(t, 1))

	cancelled, err := f.lifecycle.CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	assert.Equal(t, 10, f.stock(t, 0))
	assert.Equal(t, 20, f.stock(t, 1))

	published := f.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.OrderCancelled, published[0].Type)
	assert.Equal(t, models.OrderStatusPending, published[0].PreviousStatus)
}

func TestCancelOrderOnlyFromPending(t *testing.T) {
	ctx := context.Background()

	for _, status := range []models.OrderStatus{
		models.OrderStatusPaid,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
		models.OrderStatusFailed,
		models.OrderStatusRefunded,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := setup(t)
			order := f.placeOrder(t)

			_, err := f.lifecycle.UpdateStatus(ctx, order.ID, status)
			require.NoError(t, err)

			_, err = f.lifecycle.CancelOrder(ctx, order.ID)
			assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
			assert.Equal(t, 8, f.stock(t, 0))
			assert.Equal(t, 17, f.stock(t, 1))
		})
	}
}

func TestCancelOrderMissing(t *testing.T) {
	f := setup(t)

	_, err := f.lifecycle.CancelOrder(context.Background(), 12345)
	assert.True(t, apperr.IsNotFound(err))
}

func TestCancelOrderRollsBackPartialRestitution(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	f.store.FailOn("IncrementStock", 2, memstore.ErrInjected)

	_, err := f.lifecycle.CancelOrder(ctx, order.ID)
	require.ErrorIs(t, err, memstore.ErrInjected)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))

	assert.Equal(t, 8, f.stock(t, 0))
	assert.Equal(t, 17, f.stock(t, 1))

	current, err := f.lifecycle.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, current.Status)
	assert.Empty(t, f.events.Events())
}

func TestCancelOrderStatusWriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	f.store.FailOn("UpdateOrderStatus", 1, memstore.ErrInjected)

	_, err := f.lifecycle.CancelOrder(ctx, order.ID)
	require.Error(t, err)
	assert.Equal(t, 8, f.stock(t, 0))
	assert.Equal(t, 17, f.stock(t, 1))
}

func TestUpdateStatusIsPermissive(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	path := []models.OrderStatus{
		models.OrderStatusDelivered,
		models.OrderStatusPending,
		models.OrderStatusRefunded,
		models.OrderStatusPaid,
	}
	for _, status := range path {
		updated, err := f.lifecycle.UpdateStatus(ctx, order.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)
	}

	published := f.events.Events()
	require.Len(t, published, len(path))
	assert.Equal(t, events.OrderStatusChanged, published[1].Type)
	assert.Equal(t, models.OrderStatusDelivered, published[1].PreviousStatus)
	assert.Equal(t, models.OrderStatusPending, published[1].Status)

	assert.Equal(t, 8, f.stock(t, 0))
}

func TestUpdateStatusRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	_, err := f.lifecycle.UpdateStatus(ctx, order.ID, models.OrderStatus("lost"))
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.lifecycle.UpdateStatus(ctx, order.ID+100, models.OrderStatusPaid)
	assert.True(t, apperr.IsNotFound(err))
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	f.events.Err = errors.New("broker down")

	updated, err := f.lifecycle.UpdateStatus(ctx, order.ID, models.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, updated.Status)
}

func TestSetPaymentReference(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	order := f.placeOrder(t)

	updated, err := f.lifecycle.SetPaymentReference(ctx, order.ID, "pi_3Nx")
	require.NoError(t, err)
	require.NotNil(t, updated.ExternalPaymentRef)
	assert.Equal(t, "pi_3Nx", *updated.ExternalPaymentRef)
	assert.Equal(t, models.OrderStatusPending, updated.Status)
	assert.Equal(t, 8, f.stock(t, 0))

	_, err = f.lifecycle.SetPaymentReference(ctx, order.ID, "  ")
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.lifecycle.SetPaymentReference(ctx, order.ID+100, "pi_1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestUpdateOrderLinePanics(t *testing.T) {
	f := setup(t)
	order := f.placeOrder(t)

	lines, err := f.lifecycle.GetOrderLines(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Panics(t, func() {
		_, _ = f.lifecycle.UpdateOrderLine(context.Background(), lines[0].ID, 99)
	})

	after, err := f.lifecycle.GetOrderLine(context.Background(), lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.Quantity)
}

func TestGetOrderLinesMissingOrder(t *testing.T) {
	f := setup(t)

	_, err := f.lifecycle.GetOrderLines(context.Background(), 777)
	assert.True(t, apperr.IsNotFound(err))
}

func TestListAndDeleteOrders(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		ids = append(ids, f.placeOrder(t).ID)
	}

	byUser, err := f.lifecycle.ListOrdersByUser(ctx, f.user.ID, "", 0)
	require.NoError(t, err)
	require.Len(t, byUser.Items, 3)
	assert.Equal(t, ids[2], byUser.Items[0].ID)
	assert.False(t, byUser.HasMore)

	all, err := f.lifecycle.ListOrders(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 2, all.TotalPages)
	assert.Len(t, all.Items, 2)

	require.NoError(t, f.lifecycle.DeleteOrder(ctx, ids[0]))
	assert.True(t, apperr.IsNotFound(f.lifecycle.DeleteOrder(ctx, ids[0])))

	_, err = f.lifecycle.GetOrder(ctx, ids[0])
	assert.True(t, apperr.IsNotFound(err))
}
