package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

const orderColumns = `id, user_id, order_number, status, total, external_payment_ref, created_at, updated_at, version`

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s", uuid.NewString())
}

func (s *Store) CreateOrder(ctx context.Context, userID, total int64) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, order_number, status, total, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	err := sqlx.GetContext(ctx, s.q, order, query, userID, generateOrderNumber(), models.OrderStatusPending, total)
	if err != nil {
		return nil, translate(err, "create order")
	}

	return order, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *Store) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getOrder(ctx context.Context, query string, id int64) (*models.Order, error) {
	order := &models.Order{}

	if err := sqlx.GetContext(ctx, s.q, order, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("order %d not found", id)
		}
		return nil, translate(err, "get order")
	}

	return order, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	cursorData, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "decode cursor")
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1); err != nil {
		return nil, translate(err, "list orders")
	}

	return store.PageOrders(orders, limit, func(o models.Order) store.OrderCursor {
		return store.OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (s *Store) ListOrders(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Order], error) {
	total, err := s.count(ctx, `SELECT COUNT(*) FROM orders`)
	if err != nil {
		return nil, translate(err, "count orders")
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	var orders []models.Order
	if err := sqlx.SelectContext(ctx, s.q, &orders, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, translate(err, "list orders")
	}

	return store.NewOffsetPage(orders, total, page, pageSize), nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	return s.updateOrder(ctx, `
		UPDATE orders
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+orderColumns, id, string(status))
}

func (s *Store) UpdatePaymentRef(ctx context.Context, id int64, ref string) (*models.Order, error) {
	return s.updateOrder(ctx, `
		UPDATE orders
		SET external_payment_ref = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+orderColumns, id, ref)
}

func (s *Store) updateOrder(ctx context.Context, query string, id int64, value string) (*models.Order, error) {
	order := &models.Order{}

	if err := sqlx.GetContext(ctx, s.q, order, query, value, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("order %d not found", id)
		}
		return nil, translate(err, "update order")
	}

	return order, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete order")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return apperr.NotFound("order %d not found", id)
	}

	return nil
}

func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{OrdersByStatus: make(map[models.OrderStatus]int64)}

	err := s.q.QueryRowxContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM orders),
			(SELECT COALESCE(SUM(total), 0) FROM orders WHERE status = $1)`,
		models.OrderStatusPaid).Scan(
		&stats.TotalUsers,
		&stats.TotalProducts,
		&stats.TotalOrders,
		&stats.TotalRevenue,
	)
	if err != nil {
		return nil, translate(err, "load stats")
	}

	rows, err := s.q.QueryxContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, translate(err, "count orders by status")
	}
	defer rows.Close()

	for rows.Next() {
		var status models.OrderStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translate(err, "scan order status")
		}
		stats.OrdersByStatus[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, translate(err, "rows error")
	}

	return stats, nil
}
