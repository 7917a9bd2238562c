package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/acavero/shopline-backend/api/routes"
	"github.com/acavero/shopline-backend/internal/checkout"
	"github.com/acavero/shopline-backend/internal/inventory"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/internal/payments"
	"github.com/acavero/shopline-backend/internal/refunds"
	"github.com/acavero/shopline-backend/internal/shipping"
	"github.com/acavero/shopline-backend/pkg/config"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/metrics"
	"github.com/acavero/shopline-backend/pkg/migrate"
	"github.com/acavero/shopline-backend/pkg/outbox"
	"github.com/acavero/shopline-backend/pkg/redis"
)

const (
	paymentCallbackIdempotencyTTL = 24 * time.Hour
	shutdownTimeout               = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	meters := metrics.NewOrderMetrics(promRegistry)
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventoryService, err := inventory.NewService(inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(
		ordersRepo,
		dbClient,
		inventoryService,
		events,
		meters,
		logg,
		cfg.Checkout.CancelWindow,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	gateway := payments.NewDevGateway()
	carrier := shipping.NewDevCarrier()

	checkoutService, err := checkout.NewService(
		dbClient,
		checkout.NewProductRepository(dbClient.DB()),
		ordersRepo,
		ordersService,
		inventoryService,
		gateway,
		events,
		meters,
		logg,
		checkout.Config{
			TaxRateBasisPoints: cfg.Checkout.TaxRateBasisPoints,
			Currency:           enums.Currency(cfg.Gateway.Currency),
			GatewayTimeout:     cfg.Gateway.CallTimeout,
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		dbClient,
		ordersService,
		inventoryService,
		events,
		meters,
		logg,
		cfg.Gateway.SigningSecret,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}
	paymentGuard := redis.NewIdempotencyGuard(redisClient, "payment-callback", paymentCallbackIdempotencyTTL)

	shippingService, err := shipping.NewService(
		dbClient,
		ordersService,
		ordersRepo,
		carrier,
		events,
		meters,
		logg,
		shipping.Config{
			CallTimeout: cfg.Carrier.CallTimeout,
			PickupSite:  cfg.Carrier.PickupSite,
		},
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	refundsService, err := refunds.NewService(
		dbClient,
		refunds.NewRepository(dbClient.DB()),
		ordersService,
		gateway,
		events,
		meters,
		logg,
		cfg.Gateway.CallTimeout,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promRegistry,
			checkoutService,
			ordersService,
			paymentsService,
			paymentGuard,
			shippingService,
			refundsService,
		),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "api server shut down gracefully")
}
