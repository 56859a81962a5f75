// Package catalog is the product and user administration the shop core relies
// on for existence, price and stock lookups.
package catalog

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/safar/go-sql-shop/internal/apperr"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/store"
	"go.uber.org/zap"
)

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func New(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logging.OrNop(logger)}
}

func (s *Service) CreateProduct(ctx context.Context, p store.NewProduct) (*models.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, apperr.InvalidArgument("product name is required")
	}
	if p.Price < 0 {
		return nil, apperr.InvalidArgument("price must not be negative, got %d", p.Price)
	}
	if p.Stock < 0 {
		return nil, apperr.InvalidArgument("stock must not be negative, got %d", p.Stock)
	}

	product, err := s.store.Products().CreateProduct(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.Products().GetProduct(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Product], error) {
	page, pageSize = store.NormalizePage(page, pageSize)

	result, err := s.store.Products().ListProducts(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return result, nil
}

// UpdateProduct applies u when version matches the stored version and fails
// with Conflict otherwise.
func (s *Service) UpdateProduct(ctx context.Context, id int64, u store.ProductUpdate, version int) (*models.Product, error) {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, apperr.InvalidArgument("product name must not be empty")
		}
		u.Name = &name
	}
	if u.Price != nil && *u.Price < 0 {
		return nil, apperr.InvalidArgument("price must not be negative, got %d", *u.Price)
	}
	if u.Stock != nil && *u.Stock < 0 {
		return nil, apperr.InvalidArgument("stock must not be negative, got %d", *u.Stock)
	}

	product, err := s.store.Products().UpdateProduct(ctx, id, u, version)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

// DeleteProduct removes a product that no order refers to, along with any
// cart lines holding it.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.Products().DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *Service) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidArgument("invalid email address %q", email)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidArgument("user name is required")
	}

	user, err := s.store.Users().CreateUser(ctx, email, name)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.Users().GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.User], error) {
	page, pageSize = store.NormalizePage(page, pageSize)

	result, err := s.store.Users().ListUsers(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return result, nil
}

// Stats reports revenue from paid orders only.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.store.Orders().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
