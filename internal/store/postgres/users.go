package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
)

const userColumns = `id, email, name, created_at, updated_at, version`

func (s *Store) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, created_at, updated_at, version)
		VALUES ($1, $2, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	if err := sqlx.GetContext(ctx, s.q, user, query, email, name); err != nil {
		return nil, translate(err, "create user")
	}

	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := sqlx.GetContext(ctx, s.q, user, query, id); err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("user %d not found", id)
		}
		return nil, translate(err, "get user")
	}

	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.User], error) {
	total, err := s.count(ctx, `SELECT COUNT(*) FROM users`)
	if err != nil {
		return nil, translate(err, "count users")
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	var users []models.User
	if err := sqlx.SelectContext(ctx, s.q, &users, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, translate(err, "list users")
	}

	return store.NewOffsetPage(users, total, page, pageSize), nil
}
