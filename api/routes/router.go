package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acavero/shopline-backend/api/controllers"
	"github.com/acavero/shopline-backend/api/middleware"
	checkoutsvc "github.com/acavero/shopline-backend/internal/checkout"
	"github.com/acavero/shopline-backend/internal/orders"
	"github.com/acavero/shopline-backend/internal/payments"
	"github.com/acavero/shopline-backend/internal/refunds"
	"github.com/acavero/shopline-backend/internal/shipping"
	"github.com/acavero/shopline-backend/pkg/config"
	"github.com/acavero/shopline-backend/pkg/db"
	"github.com/acavero/shopline-backend/pkg/logger"
	"github.com/acavero/shopline-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	promRegistry *prometheus.Registry,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	paymentGuard *redis.IdempotencyGuard,
	shippingService shipping.Service,
	refundsService refunds.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if promRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/verify", controllers.PaymentCallback(paymentsService, paymentGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))
		r.Route("/account/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.AccountOrderDetail(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.AccountOrderCancel(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderList(ordersService, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(ordersService, logg))
		})
		r.Route("/shipping", func(r chi.Router) {
			r.Post("/create", controllers.AdminShipmentCreate(shippingService, logg))
			r.Post("/track", controllers.AdminShipmentTrack(shippingService, logg))
			r.Post("/pickup", controllers.AdminShipmentPickup(shippingService, logg))
			r.Get("/label", controllers.AdminShipmentLabel(shippingService, logg))
		})
		r.Post("/refunds", controllers.AdminRefundCreate(refundsService, logg))
	})

	return r
}
