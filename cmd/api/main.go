package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/go-sql-shop/internal/cart"
	"github.com/safar/go-sql-shop/internal/catalog"
	"github.com/safar/go-sql-shop/internal/checkout"
	"github.com/safar/go-sql-shop/internal/config"
	"github.com/safar/go-sql-shop/internal/database"
	"github.com/safar/go-sql-shop/internal/events"
	"github.com/safar/go-sql-shop/internal/httpapi"
	"github.com/safar/go-sql-shop/internal/idempotency"
	"github.com/safar/go-sql-shop/internal/logging"
	"github.com/safar/go-sql-shop/internal/orders"
	"github.com/safar/go-sql-shop/internal/store/postgres"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "shop-api",
		Usage: "cart, checkout and order service",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "apply pending migrations before serving"},
				},
				Action: serve,
			},
			{
				Name:      "migrate",
				Usage:     "apply or roll back database migrations",
				ArgsUsage: "up|down",
				Action:    runMigrations,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "shop-api: %v\n", err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	logger.Info("connected to database")

	if c.Bool("migrate") {
		if err := database.Migrate(db.DB, database.Up); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	txOpts := database.DefaultTxOptions()
	txOpts.MaxRetries = cfg.Database.TxMaxRetries
	st := postgres.New(db, txOpts)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, logger)
		logger.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrderTopic))
	}
	defer publisher.Close()

	var guard idempotency.Guard = idempotency.NewMemoryGuard(cfg.Redis.IdempotencyTTL)
	if cfg.Redis.URL != "" {
		redisGuard, err := idempotency.NewRedisGuard(ctx, cfg.Redis.URL, cfg.Redis.IdempotencyTTL)
		if err != nil {
			return err
		}
		defer redisGuard.Close()
		guard = redisGuard
		logger.Info("idempotency keys stored in redis")
	}

	handler := httpapi.NewHandler(httpapi.Config{
		Catalog:     catalog.New(st, logger),
		Cart:        cart.New(st, logger),
		Checkout:    checkout.New(st, publisher, logger),
		Orders:      orders.NewLifecycle(st, publisher, logger),
		Idempotency: guard,
		Ping:        db.PingContext,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runMigrations(c *cli.Context) error {
	direction, err := database.ParseDirection(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewConnection(c.Context, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db.DB, direction); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "migrations applied (%s)\n", direction)
	return nil
}
