// Package httpapi exposes the shop over HTTP. Authentication happens upstream:
// the caller is identified by the X-User-ID header and administrators carry
// X-User-Role: admin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sql-shop/internal/cart"
	"github.com/safar/go-sql-shop/internal/catalog"
	"github.com/safar/go-sql-shop/internal/checkout"
	"github.com/safar/go-sql-shop/internal/idempotency"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/orders"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

type Handler struct {
	catalog     *catalog.Service
	cart        *cart.Service
	checkout    *checkout.Service
	orders      *orders.Lifecycle
	idempotency idempotency.Guard
	ping        func(context.Context) error
	logger      *zap.Logger
}

type Config struct {
	Catalog     *catalog.Service
	Cart        *cart.Service
	Checkout    *checkout.Service
	Orders      *orders.Lifecycle
	Idempotency idempotency.Guard
	// Ping backs the health check; nil means always healthy.
	Ping   func(context.Context) error
	Logger *zap.Logger
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		catalog:     cfg.Catalog,
		cart:        cfg.Cart,
		checkout:    cfg.Checkout,
		orders:      cfg.Orders,
		idempotency: cfg.Idempotency,
		ping:        cfg.Ping,
		logger:      logging.OrNop(cfg.Logger),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(h.identify)

	r.Get("/health", h.Health)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
		r.Get("/{id}", h.GetUser)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.With(requireAdmin).Post("/", h.CreateProduct)
		r.With(requireAdmin).Patch("/{id}", h.UpdateProduct)
		r.With(requireAdmin).Delete("/{id}", h.DeleteProduct)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/", h.GetCart)
		r.Post("/", h.AddToCart)
		r.Delete("/", h.ClearCart)
		r.Put("/{id}", h.UpdateCartItem)
		r.Delete("/{id}", h.RemoveCartItem)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/checkout", h.Checkout)
		r.Get("/", h.ListMyOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/cancel", h.CancelOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/orders", h.ListOrders)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		r.Patch("/orders/{id}/payment", h.SetPaymentReference)
		r.Delete("/orders/{id}", h.DeleteOrder)
		r.Get("/stats", h.Stats)
	})

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.logger.Error("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
