package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"ms-pettag/internal/analytics"
	analytics_api "ms-pettag/internal/analytics/api"
	"ms-pettag/internal/auth"
	"ms-pettag/internal/config"
	"ms-pettag/internal/kafka"
	"ms-pettag/internal/logger"
	"ms-pettag/internal/order"
	orderdb "ms-pettag/internal/order/db"
	"ms-pettag/internal/order/order_api"
	rediswrap "ms-pettag/internal/order/redis"
	"ms-pettag/internal/payment"
	"ms-pettag/internal/payment/gateway"
	"ms-pettag/internal/payment/payment_api"
	"ms-pettag/internal/pets"
	"ms-pettag/internal/qr"
	qrdb "ms-pettag/internal/qr/db"
	"ms-pettag/internal/qr/qr_api"
	"ms-pettag/internal/qr/qr_generator"
	"ms-pettag/internal/qr/tagsheet"
	"ms-pettag/internal/scanlog"
	scandb "ms-pettag/internal/scanlog/db"
	"ms-pettag/internal/sse"
	"ms-pettag/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

// app holds the long-lived clients main opens. routes builds every service
// on top of them.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *bun.DB
	redis    *redis.Client
	events   *kafka.Events
	verifier auth.Verifier
	gateway  gateway.Gateway
}

func (a *app) routes() http.Handler {
	log := a.log

	hub := sse.NewOrderEventEmitter()
	scans := scanlog.NewService(&scandb.DB{Bun: a.db}, log)
	qrService := qr.NewQRService(
		&qrdb.DB{Bun: a.db},
		pets.NewDirectory(a.db),
		qr_generator.NewQRGenerator(a.cfg.QR.PublicBaseURL, a.cfg.QR.ImageSize),
		scans,
		a.events,
		log,
	)

	orderService := order.NewOrderService(
		&orderdb.DB{Bun: a.db},
		rediswrap.NewRedis(a.redis, a.cfg.Orders.ConfirmLockTTL, log),
		qrService,
		a.events,
		hub,
		log,
	)
	orderService.Currency = a.cfg.Payment.Currency
	orderService.Sheets = tagsheet.NewRenderer(a.cfg.QR.TagSheetFont)

	reconciler := payment.NewReconciler(
		orderService,
		a.gateway,
		a.events,
		payment.Signer{CustID: a.cfg.Payment.EpaycoCustID, Key: a.cfg.Payment.EpaycoPKey},
		a.cfg.Payment.GatewayTimeout,
		a.cfg.Payment.Currency,
		log,
	)

	statsService := analytics.NewService(analytics.NewDB(a.db), &scandb.DB{Bun: a.db})

	orderHandler := order_api.NewHandler(orderService, reconciler, log)
	sseHandler := order_api.NewSSEHandler(orderService, hub, log)
	qrHandler := qr_api.NewHandler(qrService, log)
	paymentHandler := payment_api.NewHandler(reconciler, a.cfg.Payment.StripeWebhookSecret, a.cfg.Server.FrontendURL, log)
	statsHandler := analytics_api.NewHandler(statsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/health", a.health)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/orders", order_api.Routes(orderHandler, sseHandler, a.verifier, log))
		log.Info("ROUTER", "Order routes registered under /api/orders")

		r.Mount("/qr", qrHandler.Routes(a.verifier, log))
		log.Info("ROUTER", "QR routes registered under /api/qr")

		r.Mount("/payments", paymentHandler.Routes(a.verifier, log))
		log.Info("ROUTER", "Payment routes registered under /api/payments")

		r.With(auth.Middleware(a.verifier, log), auth.RequireAdmin).Get("/admin/stats", statsHandler.GetStats)
		log.Info("ROUTER", "Admin stats registered at /api/admin/stats")
	})
	return r
}

// health reports 503 when Postgres is unreachable. Redis only degrades the
// confirmation lock, so it is reported but does not fail the check.
func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"database": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := a.db.PingContext(ctx); err != nil {
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		status["redis"] = err.Error()
	}

	body := utils.SuccessResponse("healthy", status)
	if code != http.StatusOK {
		body = utils.ErrorResponse("unhealthy", "StorageError")
		body.Data = status
	}
	utils.WriteJSON(w, code, body)
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func newGateway(cfg *config.Config, log *logger.Logger) (gateway.Gateway, error) {
	p := cfg.Payment
	switch p.Provider {
	case "stripe":
		return gateway.NewStripe(gateway.StripeConfig{SecretKey: p.StripeSecretKey, Timeout: p.GatewayTimeout}, log)
	case "epayco":
		return gateway.NewEpayco(gateway.EpaycoConfig{
			APIURL:        p.EpaycoAPIURL,
			ValidationURL: p.EpaycoValidationURL,
			PublicKey:     p.EpaycoPublicKey,
			PrivateKey:    p.EpaycoPrivateKey,
			TestMode:      p.EpaycoTestMode,
			Timeout:       p.GatewayTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", p.Provider)
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.OIDCIssuer != "" {
		return auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
	}
	return auth.NewHMACVerifier(cfg.Auth.JWTSecret), nil
}

func newEvents(cfg *config.Config, log *logger.Logger) (*kafka.Events, func() error) {
	if !cfg.Kafka.Enabled {
		log.Info("KAFKA", "Kafka disabled, domain events go to the log only")
		return kafka.NewEvents(kafka.LogPublisher{Logger: log}, cfg.Kafka.TopicPrefix, log), func() error { return nil }
	}

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.Topics(cfg.Kafka.TopicPrefix), log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		log.Info("KAFKA", "Required topics ensured successfully")
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	return kafka.NewEvents(producer, cfg.Kafka.TopicPrefix, log), producer.Close
}
