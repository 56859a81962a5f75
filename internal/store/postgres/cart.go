package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
)

const cartLineColumns = `id, user_id, product_id, quantity, created_at, updated_at`

func (s *Store) CreateCartLine(ctx context.Context, userID, productID int64, qty int) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING ` + cartLineColumns

	if err := sqlx.GetContext(ctx, s.q, line, query, userID, productID, qty); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, err, "user %d already has a cart line for product %d", userID, productID)
		}
		return nil, translate(err, "create cart line")
	}

	return line, nil
}

func (s *Store) GetCartLine(ctx context.Context, id int64) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `SELECT ` + cartLineColumns + ` FROM cart_items WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, line, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("cart line %d not found", id)
		}
		return nil, translate(err, "get cart line")
	}

	return line, nil
}

func (s *Store) FindCartLine(ctx context.Context, userID, productID int64) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		SELECT ` + cartLineColumns + `
		FROM cart_items
		WHERE user_id = $1 AND product_id = $2
		FOR UPDATE`

	if err := sqlx.GetContext(ctx, s.q, line, query, userID, productID); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, translate(err, "find cart line")
	}

	return line, nil
}

func (s *Store) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.listCartLines(ctx, userID, "")
}

func (s *Store) LockCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.listCartLines(ctx, userID, " FOR UPDATE")
}

func (s *Store) listCartLines(ctx context.Context, userID int64, lockClause string) ([]models.CartLine, error) {
	query := `
		SELECT ` + cartLineColumns + `
		FROM cart_items
		WHERE user_id = $1
		ORDER BY product_id` + lockClause

	lines := []models.CartLine{}
	if err := sqlx.SelectContext(ctx, s.q, &lines, query, userID); err != nil {
		return nil, translate(err, "list cart lines")
	}

	return lines, nil
}

func (s *Store) UpdateCartLineQuantity(ctx context.Context, id int64, qty int) (*models.CartLine, error) {
	line := &models.CartLine{}

	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + cartLineColumns

	if err := sqlx.GetContext(ctx, s.q, line, query, qty, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("cart line %d not found", id)
		}
		return nil, translate(err, "update cart line")
	}

	return line, nil
}

func (s *Store) DeleteCartLine(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return translate(err, "delete cart line")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return apperr.NotFound("cart line %d not found", id)
	}

	return nil
}

func (s *Store) DeleteCartLines(ctx context.Context, userID int64) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, translate(err, "clear cart")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, translate(err, "get rows affected")
	}

	return rowsAffected, nil
}

func (s *Store) DeleteCartLinesByID(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, translate(err, "delete cart lines")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, translate(err, "get rows affected")
	}

	return rowsAffected, nil
}
