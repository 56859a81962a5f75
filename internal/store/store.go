// Package store declares the storage ports the shop core depends on. The
// postgres package is the production adapter; memstore backs unit tests.
package store

import (
	"context"

	"github.com/safar/go-sql-shop/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, email, name string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int) (*OffsetPage[models.User], error)
}

type NewProduct struct {
	Name        string
	Description string
	Price       int64
	Stock       int
}

// ProductUpdate carries the admin-editable fields; nil fields are left alone.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *int64
	Stock       *int
}

type ProductStore interface {
	CreateProduct(ctx context.Context, p NewProduct) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	// LockProduct reads the product and holds its row lock until the
	// surrounding transaction ends.
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, page, pageSize int) (*OffsetPage[models.Product], error)
	// UpdateProduct applies u only if the stored version still equals version.
	UpdateProduct(ctx context.Context, id int64, u ProductUpdate, version int) (*models.Product, error)
	// DecrementStock subtracts qty as one indivisible step and never lets
	// stock go below zero.
	DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error)
	IncrementStock(ctx context.Context, id int64, qty int) (*models.Product, error)
	// DeleteProduct fails with a Conflict while any order line references
	// the product. Cart lines holding it are removed with it.
	DeleteProduct(ctx context.Context, id int64) error
}

type CartLineStore interface {
	// CreateCartLine fails with a Conflict when the user already has a line
	// for the product.
	CreateCartLine(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error)
	GetCartLine(ctx context.Context, id int64) (*models.CartLine, error)
	// FindCartLine returns nil when the user has no line for the product.
	FindCartLine(ctx context.Context, userID, productID int64) (*models.CartLine, error)
	// ListCartLines orders lines by product id.
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	// LockCartLines is ListCartLines holding each row lock until the
	// surrounding transaction ends.
	LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	UpdateCartLineQuantity(ctx context.Context, id int64, qty int) (*models.CartLine, error)
	DeleteCartLine(ctx context.Context, id int64) error
	DeleteCartLines(ctx context.Context, userID int64) (int64, error)
	DeleteCartLinesByID(ctx context.Context, ids []int64) (int64, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, userID, total int64) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage[models.Order], error)
	ListOrders(ctx context.Context, page, pageSize int) (*OffsetPage[models.Order], error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error)
	UpdatePaymentRef(ctx context.Context, id int64, ref string) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.Stats, error)
}

// OrderLineStore has no update path: order lines are immutable.
type OrderLineStore interface {
	CreateOrderLine(ctx context.Context, orderID, productID int64, qty int, price int64) (*models.OrderLine, error)
	GetOrderLine(ctx context.Context, id int64) (*models.OrderLine, error)
	ListOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error)
}

type Store interface {
	Users() UserStore
	Products() ProductStore
	CartLines() CartLineStore
	Orders() OrderStore
	OrderLines() OrderLineStore

	// WithinTx runs fn against a transactional view of the store. The work
	// commits when fn returns nil and rolls back otherwise. Calling WithinTx
	// on a transactional view joins the running transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
