package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

const productColumns = `id, name, description, price, stock, created_at, updated_at, version`

func (s *Store) CreateProduct(ctx context.Context, p store.NewProduct) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (name, description, price, stock, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, s.q, product, query, p.Name, p.Description, p.Price, p.Stock)
	if err != nil {
		return nil, translate(err, "create product")
	}

	return product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *Store) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.getProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) getProduct(ctx context.Context, query string, id int64) (*models.Product, error) {
	product := &models.Product{}

	if err := sqlx.GetContext(ctx, s.q, product, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		return nil, translate(err, "get product")
	}

	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	total, err := s.count(ctx, `SELECT COUNT(*) FROM products`)
	if err != nil {
		return nil, translate(err, "count products")
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	var products []models.Product
	if err := sqlx.SelectContext(ctx, s.q, &products, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, translate(err, "list products")
	}

	return store.NewOffsetPage(products, total, page, pageSize), nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, u store.ProductUpdate, version int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET name = COALESCE($1, name),
		    description = COALESCE($2, description),
		    price = COALESCE($3, price),
		    stock = COALESCE($4, stock),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $5 AND version = $6
		RETURNING ` + productColumns

	err := sqlx.GetContext(ctx, s.q, product, query, u.Name, u.Description, u.Price, u.Stock, id, version)
	if err != nil {
		if database.IsNoRows(err) {
			if _, getErr := s.GetProduct(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, apperr.Conflict("product %d was modified concurrently (version %d is stale)", id, version)
		}
		return nil, translate(err, "update product")
	}

	return product, nil
}

func (s *Store) DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock = stock - $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock >= $1
		RETURNING ` + productColumns

	if err := sqlx.GetContext(ctx, s.q, product, query, qty, id); err != nil {
		if database.IsNoRows(err) {
			current, getErr := s.GetProduct(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, apperr.InvalidArgument("insufficient stock for product %d: available %d, requested %d", id, current.Stock, qty)
		}
		return nil, translate(err, "decrement stock")
	}

	return product, nil
}

func (s *Store) IncrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	product := &models.Product{}

	query := `
		UPDATE products
		SET stock = stock + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING ` + productColumns

	if err := sqlx.GetContext(ctx, s.q, product, query, qty, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("product %d not found", id)
		}
		return nil, translate(err, "increment stock")
	}

	return product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperr.Wrap(apperr.KindConflict, err, "product %d is referenced by existing orders", id)
		}
		return translate(err, "delete product")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return translate(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return apperr.NotFound("product %d not found", id)
	}

	return nil
}
