package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tableside-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/tableside-backend/api/controllers/cart"
	functioncontrollers "github.com/angelmondragon/tableside-backend/api/controllers/functions"
	ordercontrollers "github.com/angelmondragon/tableside-backend/api/controllers/orders"
	realtimecontrollers "github.com/angelmondragon/tableside-backend/api/controllers/realtime"
	webhookcontrollers "github.com/angelmondragon/tableside-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tableside-backend/api/middleware"
	"github.com/angelmondragon/tableside-backend/internal/auth"
	"github.com/angelmondragon/tableside-backend/internal/cart"
	"github.com/angelmondragon/tableside-backend/internal/checkout"
	"github.com/angelmondragon/tableside-backend/internal/menu"
	"github.com/angelmondragon/tableside-backend/internal/notifications"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/internal/reconcile"
	"github.com/angelmondragon/tableside-backend/internal/restaurants"
	"github.com/angelmondragon/tableside-backend/internal/waitercalls"
	"github.com/angelmondragon/tableside-backend/internal/webhooks"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/enums"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

// Deps is everything the HTTP surface needs. Pingers are checked by
// /health/ready; Gatherer backs /metrics when metrics are exposed.
type Deps struct {
	Pingers map[string]controllers.Pinger
	Redis   *redis.Client
	Hub     realtime.Hub

	Auth          auth.Service
	Restaurants   restaurants.Service
	Menu          menu.Service
	Cart          cart.Service
	Checkout      checkout.Service
	Orders        orders.Service
	Board         *orders.Board
	Notifications notifications.Service
	WaiterCalls   waitercalls.Service
	Payments      payments.Service
	Webhooks      *webhooks.Service

	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(requestObserver(deps.HTTPMetrics)),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewThrottlePolicy("login", cfg.RateLimit.LoginWindow,
		middleware.ByClientIP(cfg.RateLimit.LoginLimit),
		middleware.ByJSONField("email", cfg.RateLimit.LoginLimit),
	)
	registerPolicy := middleware.NewThrottlePolicy("register", cfg.RateLimit.LoginWindow,
		middleware.ByClientIP(cfg.RateLimit.LoginLimit),
	)
	callbackPolicy := middleware.NewThrottlePolicy("payment-callback", cfg.RateLimit.CallbackWindow,
		middleware.ByClientIP(cfg.RateLimit.CallbackLimit),
	)

	// A nil *redis.Client stored in an interface would not compare as nil.
	var idempotencyStore middleware.ReplayStore
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
	}

	reconcilerParams := controllers.ReconcilerParams{
		Verifier:      deps.Payments,
		Updater:       reconcile.OrdersUpdater{Orders: deps.Orders},
		VerifyTimeout: cfg.Payments.VerifyTimeout,
		Logger:        logg,
	}
	streamParams := realtimecontrollers.Params{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		PingInterval:   cfg.Realtime.PingInterval,
		Logger:         logg,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if cfg.Features.ExposeMetrics && deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(throttle(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(
			throttle(registerPolicy, deps.Redis, logg),
			middleware.Idempotency(idempotencyStore, logg),
		).Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, logg)).Get("/me", controllers.AuthMe(deps.Auth, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Route("/restaurants/{restaurantId}", func(r chi.Router) {
			r.Get("/", controllers.RestaurantPublic(deps.Restaurants, deps.Menu, logg))
			r.Post("/waiter-calls", controllers.WaiterCallCreate(deps.WaiterCalls, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.CartSession(logg))
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
					r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
					r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
					r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
					r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
				})
				r.With(middleware.Idempotency(idempotencyStore, logg)).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			})
		})

		r.Route("/orders/{customerToken}", func(r chi.Router) {
			r.Get("/", controllers.TrackOrder(deps.Orders, logg))
			r.Get("/notifications", controllers.ListNotifications(deps.Notifications, logg))
		})

		r.Route("/payments/callback", func(r chi.Router) {
			r.Use(throttle(callbackPolicy, deps.Redis, logg))
			r.Get("/", controllers.PaymentCallback(reconcilerParams))
			r.Post("/retry", controllers.PaymentCallbackRetry(reconcilerParams))
		})
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MpesaCallback(deps.Webhooks, cfg.Payments.MpesaCallbackToken, webhooks.TokenMatches, logg))
		r.Get("/pesapal/ipn", webhookcontrollers.PesapalIPN(deps.Webhooks, logg))
		r.Post("/pesapal/ipn", webhookcontrollers.PesapalIPN(deps.Webhooks, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/restaurants", func(r chi.Router) {
			r.Get("/", controllers.RestaurantList(deps.Restaurants, logg))
			r.Post("/", controllers.RestaurantCreate(deps.Restaurants, logg))
			r.Route("/{restaurantId}", func(r chi.Router) {
				r.Get("/payment-settings", controllers.PaymentSettingsGet(deps.Restaurants, logg))
				r.Put("/payment-settings", controllers.PaymentSettingsUpdate(deps.Restaurants, logg))
				r.Get("/menu", controllers.MenuOwnerList(deps.Menu, logg))
				r.Post("/menu", controllers.MenuCreate(deps.Menu, logg))
				r.Patch("/menu/{itemId}", controllers.MenuUpdate(deps.Menu, logg))
				r.Delete("/menu/{itemId}", controllers.MenuDelete(deps.Menu, logg))
				r.Get("/waiter-calls", controllers.WaiterCallList(deps.WaiterCalls, logg))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			r.Post("/{orderId}/mark-paid", ordercontrollers.MarkPaid(deps.Orders, logg))
			r.Patch("/{orderId}/table", ordercontrollers.UpdateTable(deps.Orders, logg))
		})

		r.Patch("/waiter-calls/{callId}", controllers.WaiterCallUpdateStatus(deps.WaiterCalls, logg))

		r.Route("/realtime", func(r chi.Router) {
			if deps.Board != nil {
				r.Get("/orders", realtimecontrollers.OrdersBoard(deps.Board, streamParams))
			}
			if deps.Hub != nil {
				r.Get("/restaurants/{restaurantId}/waiter-calls", realtimecontrollers.WaiterCalls(deps.Restaurants, deps.Hub, streamParams))
			}
		})
	})

	r.Route("/functions/v1", func(r chi.Router) {
		r.Post("/mpesa-initialize", functioncontrollers.Initialize(deps.Payments, enums.PaymentMethodMpesa, logg))
		r.Post("/mpesa-verify", functioncontrollers.Verify(deps.Payments, enums.PaymentMethodMpesa, logg))
		r.Post("/pesapal-initialize", functioncontrollers.Initialize(deps.Payments, enums.PaymentMethodPesapal, logg))
		r.Post("/pesapal-verify", functioncontrollers.Verify(deps.Payments, enums.PaymentMethodPesapal, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.ServiceKey(cfg.Payments.ServiceKey, logg))
			r.Post("/update-order-status", functioncontrollers.UpdateOrderStatus(deps.Orders, logg))
			r.Post("/send-order-status-push", functioncontrollers.SendOrderStatusPush(deps.Orders, deps.Notifications, logg))
		})
	})

	return r
}

func throttle(policy middleware.ThrottlePolicy, client *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	if client == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.Throttle(policy, client, logg)
}

// requestObserver keeps a nil *metrics.HTTPMetrics from becoming a non-nil interface.
func requestObserver(m *metrics.HTTPMetrics) middleware.RequestObserver {
	if m == nil {
		return nil
	}
	return m
}
