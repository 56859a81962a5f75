// Package memstore is an in-memory implementation of the store ports. A
// transaction holds the store mutex for its whole duration and restores a
// snapshot when it fails, so it gives the same all-or-nothing behaviour as the
// Postgres adapter. FailOn injects storage faults for tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

type Store struct {
	mu     *sync.Mutex
	data   *data
	faults *faults
	inTx   bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu:     &sync.Mutex{},
		data:   newData(),
		faults: &faults{rules: make(map[string]fault), calls: make(map[string]int)},
	}
}

func (s *Store) Users() store.UserStore           { return s }
func (s *Store) Products() store.ProductStore     { return s }
func (s *Store) CartLines() store.CartLineStore   { return s }
func (s *Store) Orders() store.OrderStore         { return s }
func (s *Store) OrderLines() store.OrderLineStore { return s }

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.data.clone()
	tx := &Store{mu: s.mu, data: s.data, faults: s.faults, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// FailOn makes the call-th invocation (1-based, counted from now) of the named
// store method return err.
func (s *Store) FailOn(op string, call int, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.rules[op] = fault{call: call, err: err}
	s.faults.calls[op] = 0
}

// ErrInjected is a convenient storage failure for FailOn.
var ErrInjected = apperr.Storage(errors.New("injected failure"), "memstore")

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type fault struct {
	call int
	err  error
}

type faults struct {
	mu    sync.Mutex
	rules map[string]fault
	calls map[string]int
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	rule, ok := f.rules[op]
	if !ok {
		return nil
	}
	f.calls[op]++
	if f.calls[op] == rule.call {
		delete(f.rules, op)
		return rule.err
	}
	return nil
}

type data struct {
	nextID   int64
	last     time.Time
	users    map[int64]models.User
	products map[int64]models.Product
	cart     map[int64]models.CartLine
	orders   map[int64]models.Order
	lines    map[int64]models.OrderLine
}

func newData() *data {
	return &data{
		users:    make(map[int64]models.User),
		products: make(map[int64]models.Product),
		cart:     make(map[int64]models.CartLine),
		orders:   make(map[int64]models.Order),
		lines:    make(map[int64]models.OrderLine),
	}
}

func (d *data) clone() *data {
	c := &data{
		nextID:   d.nextID,
		last:     d.last,
		users:    make(map[int64]models.User, len(d.users)),
		products: make(map[int64]models.Product, len(d.products)),
		cart:     make(map[int64]models.CartLine, len(d.cart)),
		orders:   make(map[int64]models.Order, len(d.orders)),
		lines:    make(map[int64]models.OrderLine, len(d.lines)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.cart {
		c.cart[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = v
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// now is strictly increasing so (created_at, id) orderings match insertion.
func (d *data) now() time.Time {
	t := time.Now().UTC().Truncate(time.Microsecond)
	if !t.After(d.last) {
		t = d.last.Add(time.Microsecond)
	}
	d.last = t
	return t
}

func sortedDesc[T any](m map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func offsetSlice[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Users

func (s *Store) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	defer s.lock()()
	if err := s.faults.check("CreateUser"); err != nil {
		return nil, err
	}

	for _, u := range s.data.users {
		if u.Email == email {
			return nil, apperr.Conflict("create user: email %q already exists", email)
		}
	}

	now := s.data.now()
	user := models.User{ID: s.data.id(), Email: email, Name: name, CreatedAt: now, UpdatedAt: now, Version: 1}
	s.data.users[user.ID] = user
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	defer s.lock()()
	if err := s.faults.check("GetUser"); err != nil {
		return nil, err
	}

	user, ok := s.data.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.User], error) {
	defer s.lock()()
	if err := s.faults.check("ListUsers"); err != nil {
		return nil, err
	}

	all := sortedDesc(s.data.users, nil)
	return store.NewOffsetPage(offsetSlice(all, page, pageSize), int64(len(all)), page, pageSize), nil
}

// Products

func (s *Store) CreateProduct(ctx context.Context, p store.NewProduct) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("CreateProduct"); err != nil {
		return nil, err
	}

	if p.Price < 0 || p.Stock < 0 {
		return nil, apperr.InvalidArgument("create product: constraint violated")
	}
	for _, existing := range s.data.products {
		if existing.Name == p.Name {
			return nil, apperr.Conflict("create product: name %q already exists", p.Name)
		}
	}

	now := s.data.now()
	product := models.Product{
		ID:          s.data.id(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	s.data.products[product.ID] = product
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("GetProduct"); err != nil {
		return nil, err
	}
	return s.product(id)
}

func (s *Store) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("LockProduct"); err != nil {
		return nil, err
	}
	return s.product(id)
}

func (s *Store) product(id int64) (*models.Product, error) {
	product, ok := s.data.products[id]
	if !ok {
		return nil, apperr.NotFound("product %d not found", id)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	defer s.lock()()
	if err := s.faults.check("ListProducts"); err != nil {
		return nil, err
	}

	all := sortedDesc(s.data.products, nil)
	return store.NewOffsetPage(offsetSlice(all, page, pageSize), int64(len(all)), page, pageSize), nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, u store.ProductUpdate, version int) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("UpdateProduct"); err != nil {
		return nil, err
	}

	product, err := s.product(id)
	if err != nil {
		return nil, err
	}
	if product.Version != version {
		return nil, apperr.Conflict("product %d was modified concurrently (version %d is stale)", id, version)
	}

	if u.Name != nil {
		for _, other := range s.data.products {
			if other.ID != id && other.Name == *u.Name {
				return nil, apperr.Conflict("update product: name %q already exists", *u.Name)
			}
		}
		product.Name = *u.Name
	}
	if u.Description != nil {
		product.Description = *u.Description
	}
	if u.Price != nil {
		product.Price = *u.Price
	}
	if u.Stock != nil {
		product.Stock = *u.Stock
	}
	if product.Price < 0 || product.Stock < 0 {
		return nil, apperr.InvalidArgument("update product: constraint violated")
	}

	product.Version++
	product.UpdatedAt = s.data.now()
	s.data.products[id] = *product
	return product, nil
}

func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("DecrementStock"); err != nil {
		return nil, err
	}

	product, err := s.product(id)
	if err != nil {
		return nil, err
	}
	if product.Stock < qty {
		return nil, apperr.InvalidArgument("insufficient stock for product %d: available %d, requested %d", id, product.Stock, qty)
	}

	product.Stock -= qty
	product.Version++
	product.UpdatedAt = s.data.now()
	s.data.products[id] = *product
	return product, nil
}

func (s *Store) IncrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	defer s.lock()()
	if err := s.faults.check("IncrementStock"); err != nil {
		return nil, err
	}

	product, err := s.product(id)
	if err != nil {
		return nil, err
	}

	product.Stock += qty
	product.Version++
	product.UpdatedAt = s.data.now()
	s.data.products[id] = *product
	return product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	defer s.lock()()
	if err := s.faults.check("DeleteProduct"); err != nil {
		return err
	}

	if _, ok := s.data.products[id]; !ok {
		return apperr.NotFound("product %d not found", id)
	}
	for _, line := range s.data.lines {
		if line.ProductID == id {
			return apperr.Conflict("product %d is referenced by existing orders", id)
		}
	}

	for lineID, line := range s.data.cart {
		if line.ProductID == id {
			delete(s.data.cart, lineID)
		}
	}
	delete(s.data.products, id)
	return nil
}

// Cart lines

func (s *Store) CreateCartLine(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	defer s.lock()()
	if err := s.faults.check("CreateCartLine"); err != nil {
		return nil, err
	}

	if _, ok := s.data.users[userID]; !ok {
		return nil, apperr.NotFound("create cart line: user %d does not exist", userID)
	}
	if _, ok := s.data.products[productID]; !ok {
		return nil, apperr.NotFound("create cart line: product %d does not exist", productID)
	}
	if qty <= 0 {
		return nil, apperr.InvalidArgument("create cart line: constraint violated")
	}
	for _, line := range s.data.cart {
		if line.UserID == userID && line.ProductID == productID {
			return nil, apperr.Conflict("user %d already has a cart line for product %d", userID, productID)
		}
	}

	now := s.data.now()
	line := models.CartLine{ID: s.data.id(), UserID: userID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now}
	s.data.cart[line.ID] = line
	return &line, nil
}

func (s *Store) GetCartLine(ctx context.Context, id int64) (*models.CartLine, error) {
	defer s.lock()()
	if err := s.faults.check("GetCartLine"); err != nil {
		return nil, err
	}

	line, ok := s.data.cart[id]
	if !ok {
		return nil, apperr.NotFound("cart line %d not found", id)
	}
	return &line, nil
}

func (s *Store) FindCartLine(ctx context.Context, userID, productID int64) (*models.CartLine, error) {
	defer s.lock()()
	if err := s.faults.check("FindCartLine"); err != nil {
		return nil, err
	}

	for _, line := range s.data.cart {
		if line.UserID == userID && line.ProductID == productID {
			found := line
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.listCartLines("ListCartLines", userID)
}

func (s *Store) LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.listCartLines("LockCartLines", userID)
}

func (s *Store) listCartLines(op string, userID int64) ([]models.CartLine, error) {
	defer s.lock()()
	if err := s.faults.check(op); err != nil {
		return nil, err
	}

	lines := []models.CartLine{}
	for _, line := range s.data.cart {
		if line.UserID == userID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *Store) UpdateCartLineQuantity(ctx context.Context, id int64, qty int) (*models.CartLine, error) {
	defer s.lock()()
	if err := s.faults.check("UpdateCartLineQuantity"); err != nil {
		return nil, err
	}

	line, ok := s.data.cart[id]
	if !ok {
		return nil, apperr.NotFound("cart line %d not found", id)
	}
	if qty <= 0 {
		return nil, apperr.InvalidArgument("update cart line: constraint violated")
	}

	line.Quantity = qty
	line.UpdatedAt = s.data.now()
	s.data.cart[id] = line
	return &line, nil
}

func (s *Store) DeleteCartLine(ctx context.Context, id int64) error {
	defer s.lock()()
	if err := s.faults.check("DeleteCartLine"); err != nil {
		return err
	}

	if _, ok := s.data.cart[id]; !ok {
		return apperr.NotFound("cart line %d not found", id)
	}
	delete(s.data.cart, id)
	return nil
}

func (s *Store) DeleteCartLines(ctx context.Context, userID int64) (int64, error) {
	defer s.lock()()
	if err := s.faults.check("DeleteCartLines"); err != nil {
		return 0, err
	}

	var deleted int64
	for id, line := range s.data.cart {
		if line.UserID == userID {
			delete(s.data.cart, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteCartLinesByID(ctx context.Context, ids []int64) (int64, error) {
	defer s.lock()()
	if err := s.faults.check("DeleteCartLinesByID"); err != nil {
		return 0, err
	}

	var deleted int64
	for _, id := range ids {
		if _, ok := s.data.cart[id]; ok {
			delete(s.data.cart, id)
			deleted++
		}
	}
	return deleted, nil
}

// Orders

func (s *Store) CreateOrder(ctx context.Context, userID, total int64) (*models.Order, error) {
	defer s.lock()()
	if err := s.faults.check("CreateOrder"); err != nil {
		return nil, err
	}

	if _, ok := s.data.users[userID]; !ok {
		return nil, apperr.NotFound("create order: user %d does not exist", userID)
	}
	if total <= 0 {
		return nil, apperr.InvalidArgument("create order: constraint violated")
	}

	now := s.data.now()
	order := models.Order{
		ID:          s.data.id(),
		UserID:      userID,
		OrderNumber: "ORD-" + uuid.NewString(),
		Status:      models.OrderStatusPending,
		Total:       total,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	s.data.orders[order.ID] = order
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	defer s.lock()()
	if err := s.faults.check("GetOrder"); err != nil {
		return nil, err
	}
	return s.order(id)
}

func (s *Store) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	defer s.lock()()
	if err := s.faults.check("LockOrder"); err != nil {
		return nil, err
	}
	return s.order(id)
}

func (s *Store) order(id int64) (*models.Order, error) {
	order, ok := s.data.orders[id]
	if !ok {
		return nil, apperr.NotFound("order %d not found", id)
	}
	if order.ExternalPaymentRef != nil {
		ref := *order.ExternalPaymentRef
		order.ExternalPaymentRef = &ref
	}
	return &order, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	defer s.lock()()
	if err := s.faults.check("ListOrdersByUser"); err != nil {
		return nil, err
	}

	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "decode cursor")
	}

	orders := sortedDesc(s.data.orders, func(o models.Order) bool {
		return o.UserID == userID && c.Before(o.CreatedAt, o.ID)
	})
	if len(orders) > limit+1 {
		orders = orders[:limit+1]
	}

	return store.PageOrders(orders, limit, func(o models.Order) store.OrderCursor {
		return store.OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (s *Store) ListOrders(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	defer s.lock()()
	if err := s.faults.check("ListOrders"); err != nil {
		return nil, err
	}

	all := sortedDesc(s.data.orders, nil)
	return store.NewOffsetPage(offsetSlice(all, page, pageSize), int64(len(all)), page, pageSize), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	defer s.lock()()
	if err := s.faults.check("UpdateOrderStatus"); err != nil {
		return nil, err
	}

	order, err := s.order(id)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.InvalidArgument("update order: constraint violated")
	}

	order.Status = status
	order.Version++
	order.UpdatedAt = s.data.now()
	s.data.orders[id] = *order
	return order, nil
}

func (s *Store) UpdatePaymentRef(ctx context.Context, id int64, ref string) (*models.Order, error) {
	defer s.lock()()
	if err := s.faults.check("UpdatePaymentRef"); err != nil {
		return nil, err
	}

	order, err := s.order(id)
	if err != nil {
		return nil, err
	}

	order.ExternalPaymentRef = &ref
	order.Version++
	order.UpdatedAt = s.data.now()
	s.data.orders[id] = *order
	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	defer s.lock()()
	if err := s.faults.check("DeleteOrder"); err != nil {
		return err
	}

	if _, ok := s.data.orders[id]; !ok {
		return apperr.NotFound("order %d not found", id)
	}
	delete(s.data.orders, id)
	for lineID, line := range s.data.lines {
		if line.OrderID == id {
			delete(s.data.lines, lineID)
		}
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	defer s.lock()()
	if err := s.faults.check("Stats"); err != nil {
		return nil, err
	}

	stats := &models.Stats{
		TotalUsers:     int64(len(s.data.users)),
		TotalProducts:  int64(len(s.data.products)),
		TotalOrders:    int64(len(s.data.orders)),
		OrdersByStatus: make(map[models.OrderStatus]int64),
	}
	for _, order := range s.data.orders {
		stats.OrdersByStatus[order.Status]++
		if order.Status == models.OrderStatusPaid {
			stats.TotalRevenue += order.Total
		}
	}
	return stats, nil
}

// Order lines

func (s *Store) CreateOrderLine(ctx context.Context, orderID, productID int64, qty int, price int64) (*models.OrderLine, error) {
	defer s.lock()()
	if err := s.faults.check("CreateOrderLine"); err != nil {
		return nil, err
	}

	if _, ok := s.data.orders[orderID]; !ok {
		return nil, apperr.NotFound("create order line: order %d does not exist", orderID)
	}
	if _, ok := s.data.products[productID]; !ok {
		return nil, apperr.NotFound("create order line: product %d does not exist", productID)
	}
	if qty <= 0 || price < 0 {
		return nil, apperr.InvalidArgument("create order line: constraint violated")
	}

	line := models.OrderLine{ID: s.data.id(), OrderID: orderID, ProductID: productID, Quantity: qty, Price: price, CreatedAt: s.data.now()}
	s.data.lines[line.ID] = line
	return &line, nil
}

func (s *Store) GetOrderLine(ctx context.Context, id int64) (*models.OrderLine, error) {
	defer s.lock()()
	if err := s.faults.check("GetOrderLine"); err != nil {
		return nil, err
	}

	line, ok := s.data.lines[id]
	if !ok {
		return nil, apperr.NotFound("order line %d not found", id)
	}
	return &line, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	defer s.lock()()
	if err := s.faults.check("ListOrderLines"); err != nil {
		return nil, err
	}

	lines := []models.OrderLine{}
	for _, line := range s.data.lines {
		if line.OrderID == orderID {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}
