package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

const orderLineColumns = `id, order_id, product_id, quantity, price, created_at`

func (s *Store) CreateOrderLine(ctx context.Context, orderID, productID int64, qty int, price int64) (*models.OrderLine, error) {
	line := &models.OrderLine{}

	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + orderLineColumns

	if err := sqlx.GetContext(ctx, s.q, line, query, orderID, productID, qty, price); err != nil {
		return nil, translate(err, "create order line")
	}

	return line, nil
}

func (s *Store) GetOrderLine(ctx context.Context, id int64) (*models.OrderLine, error) {
	line := &models.OrderLine{}

	query := `SELECT ` + orderLineColumns + ` FROM order_items WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, line, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("order line %d not found", id)
		}
		return nil, translate(err, "get order line")
	}

	return line, nil
}

func (s *Store) ListOrderLines(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	query := `
		SELECT ` + orderLineColumns + `
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	lines := []models.OrderLine{}
	if err := sqlx.SelectContext(ctx, s.q, &lines, query, orderID); err != nil {
		return nil, translate(err, "list order lines")
	}

	return lines, nil
}
