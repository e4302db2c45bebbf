package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tableside-backend/api/controllers"
	"github.com/angelmondragon/tableside-backend/api/routes"
	"github.com/angelmondragon/tableside-backend/internal/auth"
	"github.com/angelmondragon/tableside-backend/internal/cart"
	"github.com/angelmondragon/tableside-backend/internal/checkout"
	"github.com/angelmondragon/tableside-backend/internal/menu"
	"github.com/angelmondragon/tableside-backend/internal/notifications"
	"github.com/angelmondragon/tableside-backend/internal/orders"
	"github.com/angelmondragon/tableside-backend/internal/payments"
	"github.com/angelmondragon/tableside-backend/internal/restaurants"
	"github.com/angelmondragon/tableside-backend/internal/waitercalls"
	"github.com/angelmondragon/tableside-backend/internal/webhooks"
	"github.com/angelmondragon/tableside-backend/pkg/config"
	"github.com/angelmondragon/tableside-backend/pkg/db"
	"github.com/angelmondragon/tableside-backend/pkg/logger"
	"github.com/angelmondragon/tableside-backend/pkg/metrics"
	"github.com/angelmondragon/tableside-backend/pkg/migrate"
	"github.com/angelmondragon/tableside-backend/pkg/realtime"
	"github.com/angelmondragon/tableside-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	var hub realtime.Hub
	if cfg.Features.MemoryRealtime {
		hub = realtime.NewMemoryHub(cfg.Realtime.SubscriberBuffer)
	} else {
		hub, err = realtime.NewRedisHub(redisClient, logg, cfg.Realtime.SubscriberBuffer)
		requireResource(logg, "realtime hub", err)
	}

	defer func() {
		if err := multierr.Combine(hub.Close(), redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing resources", err)
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	authService, err := auth.NewService(auth.ServiceParams{
		Owners:          auth.NewOwnerRepository(dbClient.DB()),
		JWTConfig:       cfg.JWT,
		PasswordConfig:  cfg.Password,
		AllowSelfSignup: cfg.Features.AllowSelfSignup,
	})
	requireResource(logg, "auth service", err)

	restaurantService, err := restaurants.NewService(restaurants.NewRepository(dbClient.DB()), cfg.Payments.DefaultCurrency)
	requireResource(logg, "restaurants service", err)

	menuService, err := menu.NewService(menu.NewRepository(dbClient.DB()), restaurantService)
	requireResource(logg, "menu service", err)

	cartService, err := cart.NewService(func(session string) cart.Storage {
		return cart.NewRedisStorage(redisClient, session, cfg.Redis.CartTTL)
	}, menuService)
	requireResource(logg, "cart service", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), hub)
	requireResource(logg, "notifications service", err)

	orderService, err := orders.NewService(orders.Deps{
		Repo:     orders.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Hub:      hub,
		Notifier: notificationService,
		Failures: paymentMetrics,
		Logger:   logg,
	})
	requireResource(logg, "orders service", err)

	board, err := orders.NewBoard(hub, orderService, cfg.Realtime.BoardDebounce, logg)
	requireResource(logg, "orders board", err)

	checkoutService, err := checkout.NewService(restaurantService, menuService, cartService, orderService, logg)
	requireResource(logg, "checkout service", err)

	waiterCallService, err := waitercalls.NewService(waitercalls.Deps{
		Repo:        waitercalls.NewRepository(dbClient.DB()),
		Restaurants: restaurantService,
		Hub:         hub,
		Limiter:     redisClient,
		Limit:       cfg.RateLimit.WaiterCallLimit,
		Window:      cfg.RateLimit.WaiterCallWindow,
		Logger:      logg,
	})
	requireResource(logg, "waiter calls service", err)

	paymentService, err := payments.NewService(payments.Deps{
		Orders:      orderService,
		Credentials: restaurantService,
		Gateways:    payments.NewClientFactory(&http.Client{Timeout: cfg.Payments.GatewayTimeout}),
		Metrics:     paymentMetrics,
		Logger:      logg,
		Config:      cfg.Payments,
		PublicURL:   cfg.App.PublicURL,
	})
	requireResource(logg, "payments service", err)

	webhookGuard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookDedupeTTL, "payment-webhooks")
	requireResource(logg, "webhook guard", err)

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Callbacks: webhooks.NewCallbackRepository(dbClient.DB()),
		Orders:    orderService,
		Verifier:  paymentService,
		Guard:     webhookGuard,
		Metrics:   paymentMetrics,
		Logger:    logg,
	})
	requireResource(logg, "webhook service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Pingers:       map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Redis:         redisClient,
			Hub:           hub,
			Auth:          authService,
			Restaurants:   restaurantService,
			Menu:          menuService,
			Cart:          cartService,
			Checkout:      checkoutService,
			Orders:        orderService,
			Board:         board,
			Notifications: notificationService,
			WaiterCalls:   waiterCallService,
			Payments:      paymentService,
			Webhooks:      webhookService,
			Gatherer:      prometheus.DefaultGatherer,
			HTTPMetrics:   metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}

func requireResource(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to initialize "+name, err)
	os.Exit(1)
}
