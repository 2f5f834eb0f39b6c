package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront-checkout/internal/adapter/handler"
	"github.com/rl1809/storefront-checkout/internal/adapter/messaging"
	"github.com/rl1809/storefront-checkout/internal/adapter/metrics"
	"github.com/rl1809/storefront-checkout/internal/adapter/storage"
	"github.com/rl1809/storefront-checkout/internal/config"
	"github.com/rl1809/storefront-checkout/internal/core/domain"
	"github.com/rl1809/storefront-checkout/internal/core/service"
	"github.com/rl1809/storefront-checkout/internal/port"
)

const (
	eventWorkerCount = 4
	eventQueueSize   = 10000
	idempotencyTTL   = 24 * time.Hour
)

// store is what the checkout stack needs from a storage backend.
type store interface {
	port.CatalogRepository
	port.CheckoutRepository
	port.OrderRepository
}

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	repo, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	// Initialize carts and idempotency
	policy := domain.ExpiryPolicy{TTL: cfg.CartTTL}
	var (
		carts port.CartRepository
		guard port.IdempotencyGuard
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(logger, "failed to connect redis", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis", "addr", cfg.RedisAddr)

		carts = storage.NewRedisCartStore(rdb, policy)
		guard = storage.NewRedisIdempotency(rdb)
	} else {
		memCarts := storage.NewMemoryCartStore(policy)
		defer memCarts.Close()
		carts = memCarts
		guard = storage.NewMemoryIdempotency(idempotencyTTL)
		logger.Warn("REDIS_ADDR not set, carts are kept in memory")
	}

	// Initialize metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	opts := []service.CheckoutOption{
		service.WithIdempotencyGuard(guard),
		service.WithObserver(m),
		service.WithTimeout(cfg.CheckoutTimeout),
		service.WithLogger(logger),
	}

	var dispatcher *messaging.Dispatcher
	if brokers := messaging.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		publisher := messaging.NewKafkaPublisher(brokers, cfg.KafkaOrdersTopic, logger)
		defer publisher.Close()
		dispatcher = messaging.NewDispatcher(publisher, eventWorkerCount, eventQueueSize, logger)
		opts = append(opts, service.WithEventPublisher(dispatcher))
		logger.Info("publishing order events", "brokers", brokers, "topic", cfg.KafkaOrdersTopic)
	}

	cartService := service.NewCartService(carts, repo)
	checkoutService := service.NewCheckoutService(carts, repo, repo, opts...)
	orderService := service.NewOrderService(repo)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(cartService, checkoutService, orderService, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal(logger, "failed to listen", err)
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, checkoutService, orderService,
		handler.NewCookieStore(cfg.SessionSecret), logger)
	router := httpHandler.Routes(metrics.Handler(prometheus.DefaultGatherer), m.Middleware)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "storefront"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Drain pending order events before the publisher closes
	if dispatcher != nil {
		dispatcher.Close()
		logger.Info("event workers stopped")
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, func()) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		s := storage.NewMemoryStore(cfg.LockTimeout)
		seedDemoCatalog(ctx, s, logger)
		logger.Warn("using in-memory storage, data is lost on restart")
		return s, func() {}

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "failed to connect postgres", err)
		}
		if err := pool.Ping(ctx); err != nil {
			fatal(logger, "failed to ping postgres", err)
		}
		logger.Info("connected to postgres")
		if cfg.RunMigrations {
			if err := storage.MigratePostgres(pool); err != nil {
				fatal(logger, "failed to migrate postgres", err)
			}
		}
		return storage.NewPostgresAdapter(pool, cfg.LockTimeout), pool.Close

	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			fatal(logger, "failed to connect mysql", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			fatal(logger, "failed to ping mysql", err)
		}
		logger.Info("connected to mysql")
		if cfg.RunMigrations {
			if err := storage.MigrateMySQL(db); err != nil {
				fatal(logger, "failed to migrate mysql", err)
			}
		}
		return storage.NewMySQLAdapter(db, cfg.LockTimeout), func() { db.Close() }
	}

	fatal(logger, "unknown storage driver", nil, "driver", cfg.StorageDriver)
	return nil, nil
}

func seedDemoCatalog(ctx context.Context, s *storage.MemoryStore, logger *slog.Logger) {
	demo := []domain.Product{
		{ID: 1, Name: "Espresso beans 1kg", Price: decimal.RequireFromString("24.90"), Stock: 50, Active: true},
		{ID: 2, Name: "Ceramic mug", Price: decimal.RequireFromString("9.99"), Stock: 120, Active: true},
		{ID: 3, Name: "Hand grinder", Price: decimal.RequireFromString("79.00"), Stock: 5, Active: true},
	}
	for _, p := range demo {
		if err := s.PutProduct(ctx, p); err != nil {
			fatal(logger, "failed to seed catalog", err)
		}
	}
	logger.Info("seeded demo catalog", "products", len(demo))
}

func fatal(logger *slog.Logger, msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}
	logger.Error(msg, args...)
	os.Exit(1)
}
